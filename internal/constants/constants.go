// Package constants defines the constants shared across the images-mcp service.
package constants

import "log/slog"

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the images-mcp command.
	CmdName = "images-mcp"

	// ServerName is the name the MCP server advertises during initialization.
	ServerName = "images-mcp"

	// DefaultLogLevel is the default logging level when no verbosity flag is set.
	DefaultLogLevel = slog.LevelWarn

	// DefaultConfigPath is the default path to the generators configuration file.
	DefaultConfigPath = "config.toml"

	// DefaultListenHost is the default host the MCP endpoint binds to.
	DefaultListenHost = "0.0.0.0"

	// DefaultListenPort is the default port the MCP endpoint binds to.
	// It must stay consistent with the port declared in deployment manifests.
	DefaultListenPort = 7001

	// DefaultMetricsPort is the default port for the Prometheus metrics endpoint.
	DefaultMetricsPort = 2112

	// MCPEndpointPath is the HTTP path the streamable MCP transport is mounted on.
	MCPEndpointPath = "/mcp"

	// ToolPrefix is the prefix of every tool exposed by the server.
	ToolPrefix = "image-"
)

// Transport names accepted by the --transport flag and MCP_TRANSPORT.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)
