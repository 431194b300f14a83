package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EndpointMiddleware is an observer for collecting HTTP request metrics specific to endpoints.
type EndpointMiddleware struct {
	buckets  []float64
	registry prometheus.Registerer
}

// NewEndpointMiddleware creates a new EndpointMiddleware with the provided registry.
func NewEndpointMiddleware(registry prometheus.Registerer) *EndpointMiddleware {
	return &EndpointMiddleware{
		// Mainly used for HTTP request durations which will skew small unless something is wrong. Max of 10.24.
		buckets:  prometheus.ExponentialBuckets(0.005, 2, 12),
		registry: registry,
	}
}

// Wrap is a middleware function that wraps an HTTP handler to collect metrics from an endpoint.
func (m *EndpointMiddleware) Wrap(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code"}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_endpoint_requests_total",
			Help: "Tracks the number of HTTP requests to the endpoint.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_endpoint_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests to the endpoint.",
			Buckets: m.buckets,
		},
		labels,
	)
	requestSize := promauto.With(reg).NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "http_endpoint_request_size_bytes",
			Help: "Tracks the size of HTTP requests to the endpoint.",
		},
		labels,
	)

	base := promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(
			requestDuration,
			promhttp.InstrumentHandlerRequestSize(
				requestSize,
				handler,
			),
		),
	)

	return base.ServeHTTP
}
