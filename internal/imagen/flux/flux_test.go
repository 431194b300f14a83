package flux_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edoigtrd/mcp-image-generators/internal/config"
	"github.com/edoigtrd/mcp-image-generators/internal/imagen"
	"github.com/edoigtrd/mcp-image-generators/internal/imagen/flux"
)

type fakeConfig struct {
	apiKey string
}

func (f fakeConfig) Generator(string) config.GeneratorConf {
	return config.GeneratorConf{APIKey: f.apiKey}
}

type fakeStore struct {
	mirrored  []string
	publicURL string
	err       error
}

func (f *fakeStore) MirrorURL(_ context.Context, srcURL string) (string, error) {
	f.mirrored = append(f.mirrored, srcURL)
	if f.err != nil {
		return "", f.err
	}
	return f.publicURL, nil
}

func TestGenerate(t *testing.T) {
	tests := map[string]struct {
		options      map[string]any
		submitStatus int
		pollsBefore  int32
		finalStatus  string

		wantErr    error
		wantAnyErr bool
		wantModel  string
		wantRatio  string
	}{
		"Defaults applied": {
			options:     map[string]any{"prompt": "a red car"},
			finalStatus: "Ready",
			wantModel:   "flux-2-max",
			wantRatio:   "1:1",
		},
		"Explicit model and ratio": {
			options:     map[string]any{"prompt": "a red car", "model": "flux-dev", "aspect_ratio": "16:9"},
			finalStatus: "Ready",
			wantModel:   "flux-dev",
			wantRatio:   "16:9",
		},
		"Ready after several polls": {
			options:     map[string]any{"prompt": "a red car"},
			pollsBefore: 3,
			finalStatus: "Ready",
			wantModel:   "flux-2-max",
			wantRatio:   "1:1",
		},

		"Missing prompt errors": {options: map[string]any{}, wantAnyErr: true},
		"Unknown model errors":  {options: map[string]any{"prompt": "x", "model": "dall-e"}, wantAnyErr: true},
		"Unknown option errors": {options: map[string]any{"prompt": "x", "steps": 20}, wantAnyErr: true},
		"Rate limited errors":   {options: map[string]any{"prompt": "x"}, submitStatus: http.StatusTooManyRequests, wantErr: imagen.ErrRateLimited},
		"Out of credits errors": {options: map[string]any{"prompt": "x"}, submitStatus: http.StatusPaymentRequired, wantErr: imagen.ErrOutOfCredits},
		"Failed generation errors": {
			options:     map[string]any{"prompt": "x"},
			finalStatus: "Failed",
			wantErr:     imagen.ErrGenerationFailed,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var polls atomic.Int32
			var gotModel, gotRatio string

			mux := http.NewServeMux()
			var srv *httptest.Server
			mux.HandleFunc("POST /{model}", func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "test-key", r.Header.Get("x-key"), "Submit must carry the API key")
				gotModel = r.PathValue("model")

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body), "Setup: decoding submit body")
				gotRatio = body["aspect_ratio"]

				if tc.submitStatus != 0 {
					w.WriteHeader(tc.submitStatus)
					return
				}
				require.NoError(t, json.NewEncoder(w).Encode(map[string]string{
					"id":          "req-1",
					"polling_url": srv.URL + "/poll",
				}))
			})
			mux.HandleFunc("GET /poll", func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "test-key", r.Header.Get("x-key"), "Poll must carry the API key")
				require.Equal(t, "req-1", r.URL.Query().Get("id"), "Poll must carry the request id")

				status := tc.finalStatus
				if polls.Add(1) <= tc.pollsBefore {
					status = "Pending"
				}
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
					"status": status,
					"result": map[string]string{"sample": srv.URL + "/sample.jpg"},
				}))
			})
			srv = httptest.NewServer(mux)
			t.Cleanup(srv.Close)

			store := &fakeStore{publicURL: "https://cdn.example.com/out.jpg"}
			client := flux.New(imagen.Deps{
				Config: fakeConfig{apiKey: "test-key"},
				Store:  store,
				HTTP:   srv.Client(),
			})
			client.SetBaseURL(srv.URL)
			client.SetPolling(time.Millisecond, time.Second)

			url, err := client.Generate(t.Context(), tc.options)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, store.mirrored, "Nothing should be mirrored on error")
				return
			}
			if tc.wantAnyErr {
				require.Error(t, err)
				assert.Empty(t, store.mirrored, "Nothing should be mirrored on error")
				return
			}
			require.NoError(t, err)

			assert.Equal(t, "https://cdn.example.com/out.jpg", url, "Expected the mirrored public URL")
			assert.Equal(t, tc.wantModel, gotModel, "Model should be taken from options or defaults")
			assert.Equal(t, tc.wantRatio, gotRatio, "Aspect ratio should be taken from options or defaults")
			require.Len(t, store.mirrored, 1, "Exactly one image should be mirrored")
			assert.Equal(t, srv.URL+"/sample.jpg", store.mirrored[0], "The upstream sample should be mirrored")
		})
	}
}

func TestGenerateAPIKeyFromEnv(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-key")
		// Terminate the call early, the key is all this test cares about.
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("BFL_API_KEY", "env-key")

	client := flux.New(imagen.Deps{
		Config: fakeConfig{apiKey: "file-key"},
		Store:  &fakeStore{},
		HTTP:   srv.Client(),
	})
	client.SetBaseURL(srv.URL)

	_, err := client.Generate(t.Context(), map[string]any{"prompt": "x"})
	require.ErrorIs(t, err, imagen.ErrOutOfCredits)
	assert.Equal(t, "env-key", gotKey, "Environment API key must win over the config file")
}

func TestGenerateAPIKeyFollowsConfigReload(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("x-key"))
		// Terminate the call early, the key is all this test cares about.
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("BFL_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[generators.flux]\napi_key = \"first-key\"\n"), 0600), "Setup: failed to write config file")
	cm := config.New(path)
	require.NoError(t, cm.Load(), "Setup: failed to load config")

	client := flux.New(imagen.Deps{
		Config: cm,
		Store:  &fakeStore{},
		HTTP:   srv.Client(),
	})
	client.SetBaseURL(srv.URL)

	_, err := client.Generate(t.Context(), map[string]any{"prompt": "x"})
	require.ErrorIs(t, err, imagen.ErrOutOfCredits)

	require.NoError(t, os.WriteFile(path, []byte("[generators.flux]\napi_key = \"second-key\"\n"), 0600), "Setup: failed to rewrite config file")
	require.NoError(t, cm.Load(), "Setup: failed to reload config")

	_, err = client.Generate(t.Context(), map[string]any{"prompt": "x"})
	require.ErrorIs(t, err, imagen.ErrOutOfCredits)

	assert.Equal(t, []string{"first-key", "second-key"}, keys, "Each call must read the key current at call time")
}

func TestGeneratePollTimeout(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /{model}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{
			"id":          "req-1",
			"polling_url": srv.URL + "/poll",
		}))
	})
	mux.HandleFunc("GET /poll", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{"status": "Pending"}))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := flux.New(imagen.Deps{
		Config: fakeConfig{apiKey: "test-key"},
		Store:  &fakeStore{},
		HTTP:   srv.Client(),
	})
	client.SetBaseURL(srv.URL)
	client.SetPolling(time.Millisecond, 50*time.Millisecond)

	_, err := client.Generate(t.Context(), map[string]any{"prompt": "x"})
	require.ErrorIs(t, err, imagen.ErrGenerationFailed, "A result that never becomes ready must time out")
	assert.ErrorContains(t, err, "timed out", "The error should say the poll deadline elapsed")
}

func TestGenerateSchema(t *testing.T) {
	t.Parallel()

	client := flux.New(imagen.Deps{Config: fakeConfig{}, Store: &fakeStore{}})
	schema := client.GenerateSchema()

	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"prompt"}, schema.Required)
	assert.Equal(t, flux.DefaultModel, schema.Properties["model"].Default)
	assert.Contains(t, schema.Properties["model"].Enum, "flux-dev")
	assert.Contains(t, schema.Properties["aspect_ratio"].Enum, "21:9")
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	client := flux.New(imagen.Deps{Config: fakeConfig{}, Store: &fakeStore{}})
	caps := imagen.CapabilitiesOf(client)

	assert.True(t, caps.Generate, "flux must support generation")
	assert.False(t, caps.Edit, "flux does not support edition")
	assert.NotEmpty(t, client.Readme(), "flux ships a prompting guide")
}
