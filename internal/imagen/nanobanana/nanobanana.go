// Package nanobanana implements the RunPod nano-banana-pro image editing backend.
//
// The upstream endpoint is synchronous: a single runsync call returns the
// result URL, which is then mirrored to object storage.
package nanobanana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/edoigtrd/mcp-image-generators/internal/imagen"
	"github.com/edoigtrd/mcp-image-generators/internal/imageutil"
)

// Name is the registry name of this generator.
const Name = "nanobanana"

const (
	defaultEndpoint = "https://api.runpod.ai/v2/nano-banana-pro-edit/runsync"
	envAPIKey       = "RUNPOD_API_KEY"
)

var resolutions = []string{"1k", "2k", "4k"}

var aspectRatios = []string{"1:1", "3:2", "2:3", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"}

// Options is the payload accepted by the edit tool.
//
// An empty AspectRatio is resolved to the allowed ratio nearest to the first
// input image's dimensions. Place the most important image first when relying
// on that inference.
type Options struct {
	Prompt      string   `json:"prompt"`
	ImageURLs   []string `json:"image_urls"`
	Resolution  string   `json:"resolution"`
	AspectRatio string   `json:"aspect_ratio"`
}

// Client talks to the RunPod nano-banana-pro-edit endpoint.
type Client struct {
	deps imagen.Deps

	endpoint string
}

func init() {
	imagen.Register(Name, func(deps imagen.Deps) imagen.Generator {
		return New(deps)
	})
}

// New creates a nanobanana client with the given dependencies.
func New(deps imagen.Deps) *Client {
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	return &Client{
		deps:     deps,
		endpoint: defaultEndpoint,
	}
}

// Name returns the registry name of the generator.
func (c *Client) Name() string { return Name }

// EditSchema describes the options accepted by Edit.
func (c *Client) EditSchema() imagen.Schema {
	return imagen.ObjectSchema(map[string]imagen.Property{
		"prompt":       {Type: "string"},
		"image_urls":   {Type: "array"},
		"resolution":   {Type: "string", Default: "1k", Enum: resolutions},
		"aspect_ratio": {Type: "string", Enum: aspectRatios},
	}, "prompt", "image_urls")
}

type runsyncResponse struct {
	Output struct {
		Result string `json:"result"`
	} `json:"output"`
}

// Edit submits an edit request and returns the public URL of the mirrored image.
func (c *Client) Edit(ctx context.Context, options map[string]any) (string, error) {
	var opts Options
	if err := imagen.DecodeOptions(c.EditSchema(), options, &opts); err != nil {
		return "", err
	}
	if len(opts.ImageURLs) == 0 {
		return "", fmt.Errorf("option %q must not be empty", "image_urls")
	}

	if opts.AspectRatio == "" {
		ratio, err := c.inferAspectRatio(ctx, opts.ImageURLs[0])
		if err != nil {
			return "", err
		}
		opts.AspectRatio = ratio
	}

	input := map[string]any{
		"prompt":               opts.Prompt,
		"images":               opts.ImageURLs,
		"resolution":           opts.Resolution,
		"aspect_ratio":         opts.AspectRatio,
		"output_format":        "jpeg",
		"enable_base64_output": false,
		"enable_sync_mode":     false,
	}
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("encoding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey())

	resp, err := c.deps.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting edit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", imagen.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submitting edit request: unexpected status %s", resp.Status)
	}

	var out runsyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding edit response: %w", err)
	}
	if out.Output.Result == "" {
		return "", fmt.Errorf("%w: response carries no result url", imagen.ErrGenerationFailed)
	}

	return c.deps.Store.MirrorURL(ctx, out.Output.Result)
}

// inferAspectRatio downloads the first input image and picks the nearest
// allowed ratio to its dimensions.
func (c *Client) inferAspectRatio(ctx context.Context, firstImageURL string) (string, error) {
	data, _, err := imageutil.Download(ctx, c.deps.HTTP, firstImageURL)
	if err != nil {
		return "", fmt.Errorf("fetching first input image to infer aspect ratio: %w", err)
	}
	w, h, err := imageutil.DecodeSize(data)
	if err != nil {
		return "", fmt.Errorf("measuring first input image: %w", err)
	}
	return imageutil.NearestAspectRatio(w, h, aspectRatios)
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
Nano Banana Pro Prompting Guide
Built on Gemini 3 Pro for image gen/editing in Gemini app, AI Studio, Vertex. Use up to 14 input images.

Establish Vision: Subject, Composition, Action, Location, Style
Be specific: "Stoic robot barista with blue optics brewing coffee in futuristic Mars cafe, 3D animation style."

Refine Details: Camera, Lighting, Aspect Ratio, Text
"Low-angle 9:16 poster, golden hour backlighting f/1.8, 'URBAN EXPLORER' bold white sans-serif top."

Factual Diagrams: Demand Accuracy
"Scientifically precise cross-section of engine, historically accurate Victorian scene."

Reference Inputs Clearly
"Pose from Image A, style from Image B, background from Image C."

Text Rendering: Generate Legible Text
"Poster with 'How much wood would a woodchuck chuck' carved from wood by woodchuck."

Real-World Knowledge: Use Gemini's Expertise
"Infographic: Step-by-step elaichi chai recipe."

Translate/Localize: Adapt Text in Images
"Translate all English on yellow cans to Korean, keep rest identical."

Studio Edits: Control Lighting/Focus
"Turn daytime scene to nighttime." "Refocus on flowers."

Resize Precisely: 1K/2K/4K Ratios
"Adapt to 16:9 cinematic, 21:9 wide."

Blend Images: Consistent Characters/Brands
"Fuse 6-14 images: Mannequin dress from Img2, cinematic 16:9 composite."
"Apply groovy 1970s WAVE logo to 10 mockups: apparel, billboards (16:9 each)."

Limitations: Verify Text Fidelity, Facts, Translations, Complex Blends
Small text/spelling may err; check diagrams; edits can artifact.

Place the most important image first if using a None aspect ratio.
The targeted aspect ratio will be inferred from the first image.
`
