package daemon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edoigtrd/mcp-image-generators/cmd/images-mcp/daemon"
	"github.com/edoigtrd/mcp-image-generators/internal/constants"
)

// clearEnv blanks the legacy deployment variables so a host environment cannot
// leak into flag defaults.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{"IMAGESMCP_CONFIG", "MCP_TRANSPORT", "MCP_HOST", "MCP_PORT"} {
		t.Setenv(key, "")
	}
}

func flagDefault(t *testing.T, a *daemon.App, name string) string {
	t.Helper()

	cmd := a.RootCmd()
	flag := cmd.Flags().Lookup(name)
	require.NotNil(t, flag, "Flag %q should be installed", name)
	return flag.DefValue
}

func TestFlagDefaults(t *testing.T) {
	clearEnv(t)

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")

	assert.Equal(t, constants.DefaultConfigPath, flagDefault(t, a, "generators-config"))
	assert.Equal(t, constants.TransportHTTP, flagDefault(t, a, "transport"))
	assert.Equal(t, constants.DefaultListenHost, flagDefault(t, a, "listen-host"))
	assert.Equal(t, "7001", flagDefault(t, a, "listen-port"))
	assert.Equal(t, "2112", flagDefault(t, a, "metrics-port"))
	assert.Equal(t, "0s", flagDefault(t, a, "write-timeout"), "Write timeout defaults to unlimited")
}

func TestFlagDefaultsHonorEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAGESMCP_CONFIG", "/etc/images/config.toml")
	t.Setenv("MCP_TRANSPORT", "STDIO")
	t.Setenv("MCP_HOST", "127.0.0.1")
	t.Setenv("MCP_PORT", "7101")

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")

	assert.Equal(t, "/etc/images/config.toml", flagDefault(t, a, "generators-config"))
	assert.Equal(t, constants.TransportStdio, flagDefault(t, a, "transport"), "Transport names are case insensitive")
	assert.Equal(t, "127.0.0.1", flagDefault(t, a, "listen-host"))
	assert.Equal(t, "7101", flagDefault(t, a, "listen-port"))
}

func TestFlagDefaultsIgnoreBadPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_PORT", "not-a-port")

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")

	assert.Equal(t, "7001", flagDefault(t, a, "listen-port"), "A non-numeric port should fall back to the default")
}

func TestVersionSubcommand(t *testing.T) {
	clearEnv(t)

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")

	cmd := a.RootCmd()
	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "version")
}

func TestUsageErrorBeforeRun(t *testing.T) {
	clearEnv(t)

	a, err := daemon.New()
	require.NoError(t, err, "Setup: failed to create app")

	assert.True(t, a.UsageError(), "Before a successful parse, errors count as usage errors")
}
