// Package flux implements the Black Forest Labs image generation backend.
//
// Generation is asynchronous upstream: a submit call returns a polling URL
// which is queried until the result is ready, then the sample is mirrored to
// object storage.
package flux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/edoigtrd/mcp-image-generators/internal/imagen"
)

// Name is the registry name of this generator.
const Name = "flux"

const (
	defaultBaseURL = "https://api.bfl.ai/v1"
	envAPIKey      = "BFL_API_KEY"

	defaultPollInterval = time.Second
	defaultPollTimeout  = 10 * time.Minute
)

// DefaultModel is used when the options payload does not name one.
const DefaultModel = "flux-2-max"

var models = []string{
	"flux-2-max",
	"flux-2-pro",
	"flux-2-flex",
	"flux-kontext-max",
	"flux-kontext-pro",
	"flux-pro-1.1-ultra",
	"flux-pro-1.1",
	"flux-pro",
	"flux-dev",
}

var aspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "21:9"}

// Options is the payload accepted by the generate tool.
type Options struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	AspectRatio string `json:"aspect_ratio"`
}

// Client talks to the Black Forest Labs API.
type Client struct {
	deps imagen.Deps

	baseURL      string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func init() {
	imagen.Register(Name, func(deps imagen.Deps) imagen.Generator {
		return New(deps)
	})
}

// New creates a flux client with the given dependencies.
func New(deps imagen.Deps) *Client {
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	return &Client{
		deps:         deps,
		baseURL:      defaultBaseURL,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
}

// Name returns the registry name of the generator.
func (c *Client) Name() string { return Name }

// GenerateSchema describes the options accepted by Generate.
func (c *Client) GenerateSchema() imagen.Schema {
	return imagen.ObjectSchema(map[string]imagen.Property{
		"prompt":       {Type: "string"},
		"model":        {Type: "string", Default: DefaultModel, Enum: models},
		"aspect_ratio": {Type: "string", Default: "1:1", Enum: aspectRatios},
	}, "prompt")
}

type submitResponse struct {
	ID         string `json:"id"`
	PollingURL string `json:"polling_url"`
}

type pollResponse struct {
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

// Generate submits a generation request, waits for the result and returns the
// public URL of the mirrored image.
func (c *Client) Generate(ctx context.Context, options map[string]any) (string, error) {
	var opts Options
	if err := imagen.DecodeOptions(c.GenerateSchema(), options, &opts); err != nil {
		return "", err
	}

	submitted, err := c.submit(ctx, opts)
	if err != nil {
		return "", err
	}

	sampleURL, err := c.poll(ctx, submitted)
	if err != nil {
		return "", err
	}

	return c.deps.Store.MirrorURL(ctx, sampleURL)
}

func (c *Client) submit(ctx context.Context, opts Options) (submitResponse, error) {
	body, err := json.Marshal(map[string]string{
		"prompt":       opts.Prompt,
		"aspect_ratio": opts.AspectRatio,
	})
	if err != nil {
		return submitResponse{}, fmt.Errorf("encoding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+opts.Model, bytes.NewReader(body))
	if err != nil {
		return submitResponse{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-key", c.apiKey())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.deps.HTTP.Do(req)
	if err != nil {
		return submitResponse{}, fmt.Errorf("submitting generation request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return submitResponse{}, imagen.ErrRateLimited
	case http.StatusPaymentRequired:
		return submitResponse{}, imagen.ErrOutOfCredits
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return submitResponse{}, fmt.Errorf("submitting generation request: unexpected status %s", resp.Status)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return submitResponse{}, fmt.Errorf("decoding submit response: %w", err)
	}
	if out.PollingURL == "" {
		return submitResponse{}, fmt.Errorf("%w: no polling url in response", imagen.ErrGenerationFailed)
	}
	return out, nil
}

var errStillProcessing = errors.New("still processing")

// poll queries the polling URL until the result is ready or the poll timeout
// elapses. Upstream reports Failed/Error as terminal states.
func (c *Client) poll(ctx context.Context, submitted submitResponse) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	var sampleURL string
	op := func() error {
		result, err := c.pollOnce(ctx, submitted)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch result.Status {
		case "Ready":
			sampleURL = result.Result.Sample
			return nil
		case "Failed", "Error":
			return backoff.Permanent(fmt.Errorf("%w: upstream status %s", imagen.ErrGenerationFailed, result.Status))
		default:
			return errStillProcessing
		}
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(c.pollInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generation timed out after %s", imagen.ErrGenerationFailed, c.pollTimeout)
		}
		return "", err
	}
	if sampleURL == "" {
		return "", fmt.Errorf("%w: ready result carries no sample url", imagen.ErrGenerationFailed)
	}
	return sampleURL, nil
}

func (c *Client) pollOnce(ctx context.Context, submitted submitResponse) (pollResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, submitted.PollingURL, nil)
	if err != nil {
		return pollResponse{}, fmt.Errorf("building poll request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-key", c.apiKey())

	q := req.URL.Query()
	q.Set("id", submitted.ID)
	req.URL.RawQuery = q.Encode()

	resp, err := c.deps.HTTP.Do(req)
	if err != nil {
		return pollResponse{}, fmt.Errorf("polling generation result: %w", err)
	}
	defer resp.Body.Close()

	var out pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pollResponse{}, fmt.Errorf("decoding poll response: %w", err)
	}
	return out, nil
}

// apiKey returns the API key, preferring the environment over the config file.
func (c *Client) apiKey() string {
	if key := os.Getenv(envAPIKey); key != "" {
		return key
	}
	return c.deps.Config.Generator(Name).APIKey
}

// Readme returns the prompting guide for this generator.
func (c *Client) Readme() string {
	return readme
}

const readme = `
Structure for Control
Use JSON structured prompts when you need precise control over multiple elements. Start simple and add complexity as needed.

Be Specific with Colors
Always associate hex codes with specific objects. "The car is #FF0000" works better than "use red #FF0000 in the image."

Describe What You Want
FLUX.2 has no negative prompts. Instead of "no blur," say "sharp focus throughout." Instead of "no people," describe an "empty scene."

Reference Camera and Style
For photorealism, specify camera models, lenses, and film stocks. "Shot on Fujifilm X-T5, 35mm f/1.4" produces more authentic results than "professional photo."

Use Native Languages
Prompt in the language that best describes your desired cultural context. French for Parisian scenes, Japanese for anime styles.

Layer Multi-Reference Carefully
When using multiple input images, clearly describe the role of each: subject from image 1, style from image 2, background from image 3.
`
