package cli

import (
	"log/slog"
	"os"

	"github.com/edoigtrd/mcp-image-generators/internal/constants"
)

// SetVerbosity sets the logging level for the default logger based on the verbose flag count.
//
// The handler writes to stderr so that the stdio MCP transport keeps full
// ownership of stdout.
func SetVerbosity(level int) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: getLevel(level)})))
}

// SetSlog sets the logging level and format for the default logger.
func SetSlog(level int, jsonLogs bool) {
	if jsonLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: getLevel(level)})))
		return
	}

	SetVerbosity(level)
}

func getLevel(level int) slog.Level {
	switch level {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
