package imagen_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edoigtrd/mcp-image-generators/internal/imagen"
)

type stubGenerator struct {
	name string
	deps imagen.Deps
}

func (s stubGenerator) Name() string   { return s.name }
func (s stubGenerator) Readme() string { return "" }

type stubStore struct{}

func (stubStore) MirrorURL(context.Context, string) (string, error) { return "", nil }

func TestRegister(t *testing.T) {
	imagen.Register("test-register", func(deps imagen.Deps) imagen.Generator {
		return stubGenerator{name: "test-register", deps: deps}
	})

	assert.Contains(t, imagen.Registered(), "test-register")

	assert.Panics(t, func() {
		imagen.Register("test-register", func(deps imagen.Deps) imagen.Generator {
			return stubGenerator{}
		})
	}, "Registering the same name twice must panic")

	assert.Panics(t, func() {
		imagen.Register("test-nil", nil)
	}, "Registering a nil factory must panic")
}

func TestRegisteredIsSorted(t *testing.T) {
	imagen.Register("test-zz", func(deps imagen.Deps) imagen.Generator { return stubGenerator{name: "test-zz"} })
	imagen.Register("test-aa", func(deps imagen.Deps) imagen.Generator { return stubGenerator{name: "test-aa"} })

	names := imagen.Registered()
	assert.IsIncreasing(t, names, "Registered must return sorted names")
}

func TestBuild(t *testing.T) {
	imagen.Register("test-build", func(deps imagen.Deps) imagen.Generator {
		return stubGenerator{name: "test-build", deps: deps}
	})

	deps := imagen.Deps{Store: stubStore{}}
	built := imagen.Build(deps)

	require.Contains(t, built, "test-build")
	got, ok := built["test-build"].(stubGenerator)
	require.True(t, ok)
	assert.Equal(t, deps, got.deps, "Build must pass the dependencies to the factory")
}
