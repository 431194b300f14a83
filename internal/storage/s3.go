// Package storage mirrors generated images to S3-compatible object storage.
//
// Upstream generation APIs hand out short-lived result URLs. The mirror copies
// the image behind such a URL into the configured bucket and returns a stable
// public URL served through the CDN.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"

	"github.com/edoigtrd/mcp-image-generators/internal/config"
	"github.com/edoigtrd/mcp-image-generators/internal/imageutil"
)

const fetchTimeout = 60 * time.Second

// ConfigProvider gives access to the current storage configuration.
type ConfigProvider interface {
	Storage() config.StorageConf
}

// S3Mirror copies remote images into an S3-compatible bucket.
type S3Mirror struct {
	conf ConfigProvider
	http *http.Client

	log *slog.Logger
}

type options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Options represents an optional function to override S3Mirror default values.
type Options func(*options)

// WithHTTPClient overrides the HTTP client used to fetch source URLs.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.HTTPClient = c
	}
}

// New creates a new S3Mirror reading its settings from the given provider.
//
// Settings are read on every call so that configuration reloads take effect
// without recreating the mirror.
func New(conf ConfigProvider, args ...Options) *S3Mirror {
	opts := options{
		HTTPClient: &http.Client{Timeout: fetchTimeout},
		Logger:     slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &S3Mirror{
		conf: conf,
		http: opts.HTTPClient,
		log:  opts.Logger,
	}
}

// MirrorURL downloads srcURL and uploads it to the bucket under a fresh key.
// It returns the public URL of the uploaded object.
func (m *S3Mirror) MirrorURL(ctx context.Context, srcURL string) (publicURL string, err error) {
	defer decorate.OnError(&err, "could not mirror image to object storage")

	sc := m.conf.Storage()
	if err := sc.Validate(); err != nil {
		return "", err
	}

	if !strings.HasPrefix(srcURL, "http://") && !strings.HasPrefix(srcURL, "https://") {
		return "", fmt.Errorf("source URL must be a valid HTTP/HTTPS URL, got %q", srcURL)
	}

	parsed, err := url.Parse(srcURL)
	if err != nil {
		return "", fmt.Errorf("parsing source URL: %w", err)
	}
	key := uuid.New().String() + path.Ext(parsed.Path)

	data, contentType, err := imageutil.Download(ctx, m.http, srcURL)
	if err != nil {
		return "", err
	}

	client, err := m.client(ctx, sc)
	if err != nil {
		return "", err
	}

	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sc.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPublicRead,
	}); err != nil {
		return "", fmt.Errorf("uploading object: %w", err)
	}

	publicURL = strings.TrimSuffix(sc.CDNURL, "/") + "/" + key
	m.log.Debug("Mirrored image to object storage", "key", key, "bytes", len(data))
	return publicURL, nil
}

// client builds an S3 client from the current storage settings.
//
// S3-compatible endpoints (MinIO, Scaleway) usually need path-style addressing.
func (m *S3Mirror) client(ctx context.Context, sc config.StorageConf) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(sc.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading object storage credentials: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(sc.EndpointURL)
		o.UsePathStyle = true
	}), nil
}
