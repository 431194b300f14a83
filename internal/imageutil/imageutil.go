// Package imageutil provides helpers for fetching and measuring images.
package imageutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"strings"

	// Registered decoders for the formats the upstream APIs return.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Download fetches the contents of url and returns the body and its content type.
func Download(ctx context.Context, client *http.Client, url string) (data []byte, contentType string, err error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading body of %s: %w", url, err)
	}

	contentType = resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// DecodeSize returns the pixel dimensions of an encoded image.
func DecodeSize(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decoding image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Ratio returns the reduced aspect ratio of the given dimensions, e.g. "16:9".
func Ratio(width, height int) string {
	g := gcd(width, height)
	if g == 0 {
		return "0:0"
	}
	return strconv.Itoa(width/g) + ":" + strconv.Itoa(height/g)
}

// NearestAspectRatio returns the ratio from allowed closest to width:height.
func NearestAspectRatio(width, height int, allowed []string) (string, error) {
	if len(allowed) == 0 {
		return "", fmt.Errorf("no allowed ratios given")
	}
	if height == 0 {
		return "", fmt.Errorf("invalid image height 0")
	}
	target := float64(width) / float64(height)

	best := ""
	bestDistance := 0.0
	for _, candidate := range allowed {
		v, err := ratioValue(candidate)
		if err != nil {
			return "", err
		}
		d := target - v
		if d < 0 {
			d = -d
		}
		if best == "" || d < bestDistance {
			best = candidate
			bestDistance = d
		}
	}
	return best, nil
}

// ToBase64JPEG encodes an image as a base64 JPEG string.
func ToBase64JPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return "", fmt.Errorf("encoding JPEG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func ratioValue(ratio string) (float64, error) {
	parts := strings.Split(ratio, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid aspect ratio %q: %v", ratio, err)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h == 0 {
		return 0, fmt.Errorf("invalid aspect ratio %q", ratio)
	}
	return float64(w) / float64(h), nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
