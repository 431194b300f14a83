// Package testutils provides helpers for tests.
package testutils

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var update = flag.Bool("update", false, "update golden files")

// LoadWithUpdateFromGoldenYAML loads the golden file for the current test,
// decoded as the same type as got. With -update, the golden file is written
// from got first.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, got E) E {
	t.Helper()

	goldenPath := GoldenPath(t)

	if *update {
		t.Logf("updating golden file %s", goldenPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0750), "Cannot create golden directory")

		data, err := yaml.Marshal(got)
		require.NoError(t, err, "Cannot marshal object to YAML")
		require.NoError(t, os.WriteFile(goldenPath, data, 0600), "Cannot write golden file")
	}

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "Cannot load golden file")

	var want E
	require.NoError(t, yaml.Unmarshal(data, &want), "Cannot unmarshal golden file")

	return want
}

// GoldenPath returns the golden path for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	path := filepath.Join("testdata", "golden")
	result := testNameToPath(t)
	if result != "" {
		path = filepath.Join(path, result)
	}

	return path
}

func testNameToPath(t *testing.T) string {
	t.Helper()

	testNameToPath := os.Getenv("GO_TESTS_GOLDEN_PATH")
	if testNameToPath != "" {
		return testNameToPath
	}

	return t.Name()
}
