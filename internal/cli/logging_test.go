package cli

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edoigtrd/mcp-image-generators/internal/constants"
)

func TestGetLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		verbosity int

		want slog.Level
	}{
		"Default":             {verbosity: 0, want: constants.DefaultLogLevel},
		"Verbose":             {verbosity: 1, want: slog.LevelInfo},
		"Very verbose":        {verbosity: 2, want: slog.LevelDebug},
		"Extra verbose flags": {verbosity: 5, want: slog.LevelDebug},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, getLevel(tc.verbosity))
		})
	}
}
