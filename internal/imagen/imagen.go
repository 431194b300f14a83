// Package imagen defines the image generator contract and the registry of
// available generator backends.
package imagen

import (
	"context"
	"errors"
	"net/http"

	"github.com/edoigtrd/mcp-image-generators/internal/config"
)

// Sentinel errors surfaced by generator backends.
var (
	// ErrRateLimited is returned when the upstream API rejects a request for quota reasons.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrOutOfCredits is returned when the upstream account has no credits left.
	ErrOutOfCredits = errors.New("out of credits")

	// ErrGenerationFailed is returned when the upstream reports a failed generation.
	ErrGenerationFailed = errors.New("image generation failed")

	// ErrUnknownGenerator is returned when no generator is registered under a name.
	ErrUnknownGenerator = errors.New("unknown generator")
)

// Generator is the minimal contract every backend fulfills.
type Generator interface {
	Name() string
	Readme() string
}

// ImageGenerator is implemented by backends able to create images from scratch.
//
// Generate returns the public URL of the produced image.
type ImageGenerator interface {
	Generator
	GenerateSchema() Schema
	Generate(ctx context.Context, options map[string]any) (string, error)
}

// ImageEditor is implemented by backends able to edit existing images.
//
// Edit returns the public URL of the produced image.
type ImageEditor interface {
	Generator
	EditSchema() Schema
	Edit(ctx context.Context, options map[string]any) (string, error)
}

// Capabilities describes which operations a generator supports.
type Capabilities struct {
	Generate bool `json:"generate"`
	Edit     bool `json:"edit"`
}

// CapabilitiesOf reports the operations supported by g.
func CapabilitiesOf(g Generator) Capabilities {
	_, canGenerate := g.(ImageGenerator)
	_, canEdit := g.(ImageEditor)
	return Capabilities{Generate: canGenerate, Edit: canEdit}
}

// ObjectStore mirrors a remote image to durable public storage.
type ObjectStore interface {
	MirrorURL(ctx context.Context, srcURL string) (string, error)
}

// ConfigProvider gives generators access to their dynamic configuration.
type ConfigProvider interface {
	Generator(name string) config.GeneratorConf
}

// Deps carries the shared dependencies injected into every generator.
type Deps struct {
	Config ConfigProvider
	Store  ObjectStore
	HTTP   *http.Client
}
