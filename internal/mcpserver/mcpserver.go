// Package mcpserver exposes the image generators as MCP tools over streamable
// HTTP or stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/edoigtrd/mcp-image-generators/internal/config"
	"github.com/edoigtrd/mcp-image-generators/internal/constants"
	"github.com/edoigtrd/mcp-image-generators/internal/imagen"
	"github.com/edoigtrd/mcp-image-generators/internal/metrics"
	"github.com/edoigtrd/mcp-image-generators/internal/storage"
)

// Server is a struct that holds the MCP server, its transports and their configuration.
type Server struct {
	mcp           *server.MCPServer
	httpServer    *http.Server
	stdio         *server.StdioServer
	metricsServer *metrics.Server

	transport string
	cm        dConfigManager

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until in-flight tool calls finish before interrupting.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath string
	Transport  string

	ReadTimeout time.Duration
	// WriteTimeout of zero means unlimited. Generation tool calls stream their
	// result only after the upstream API finishes, which can take minutes.
	WriteTimeout   time.Duration
	MaxHeaderBytes int

	ListenHost string
	ListenPort int

	MetricsHost string
	MetricsPort int
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	Generator(string) config.GeneratorConf
	Storage() config.StorageConf
}

// New creates a new Server instance with the given config manager and static configuration.
func New(ctx context.Context, cm dConfigManager, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}
	if sc.Transport != constants.TransportHTTP && sc.Transport != constants.TransportStdio {
		return nil, fmt.Errorf("unknown transport %q", sc.Transport)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		transport: sc.Transport,
		cm:        cm,
		ctx:       ctx,
		cancel:    cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,
	}

	registry := prometheus.NewRegistry()

	store := storage.New(cm)
	deps := imagen.Deps{
		Config: cm,
		Store:  store,
		HTTP:   &http.Client{Timeout: 90 * time.Second},
	}
	generators := imagen.Build(deps)
	if len(generators) == 0 {
		return nil, errors.New("no image generators registered")
	}

	s.mcp = server.NewMCPServer(constants.ServerName, constants.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	registerTools(s.mcp, generators, metrics.NewToolMetrics(registry))

	streamable := server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(constants.MCPEndpointPath),
		server.WithStateLess(true),
	)
	s.stdio = server.NewStdioServer(s.mcp)

	em := metrics.NewEndpointMiddleware(registry)
	mux := http.NewServeMux()
	mux.Handle(constants.MCPEndpointPath, em.Wrap("mcp", streamable))
	mux.Handle("GET /version", em.Wrap("version", http.HandlerFunc(versionHandler)))

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        mux,
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	s.metricsServer = metrics.New(metrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, registry)

	return &s, nil
}

// Run starts the configured transport and blocks until shutdown or error.
func (s *Server) Run() error {
	slog.Info("Starting server", "transport", s.transport, "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	metricsErr := make(chan error, 1)
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	serverErr := make(chan error, 1)
	go func() {
		var err error
		if s.transport == constants.TransportStdio {
			err = s.stdio.Listen(s.gracefulCtx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
		} else {
			err = s.httpServer.ListenAndServe()
			if err == http.ErrServerClosed {
				err = nil
			}
		}
		if err != nil {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so a s.cancel() elsewhere unblocks Shutdown immediately
		err := s.httpServer.Shutdown(s.ctx)
		errM := s.metricsServer.Shutdown(s.ctx)
		if err != nil || errM != nil {
			slog.Error("Graceful shutdown failed", "err", err, "metrics_err", errM)
			s.cancel()
			return errors.Join(err, errM)
		}
		slog.Info("Server shut down gracefully")
		// now kill everything else (watchers, handlers, etc.)
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			slog.Error("Server encountered error", "err", err)
		}
		errM := s.metricsServer.Close()
		s.cancel()
		return errors.Join(err, errM)

	case err := <-metricsErr:
		if err != nil {
			slog.Error("Metrics server encountered error", "err", err)
		}
		errC := s.httpServer.Close()
		s.cancel()
		return errors.Join(err, errC)

	case err := <-watchErr:
		if err != nil {
			slog.Error("Config watcher encountered unrecoverable error", "err", err)
		}
		errC := s.httpServer.Close()
		errM := s.metricsServer.Close()
		s.cancel()

		return errors.Join(err, errC, errM)
	}
}

// Quit shuts down the server gracefully, or forcefully if force is set.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.metricsServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

func versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"version":%q}`, constants.Version)
}
