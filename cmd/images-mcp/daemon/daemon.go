// Package daemon provides the images-mcp service daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edoigtrd/mcp-image-generators/internal/cli"
	"github.com/edoigtrd/mcp-image-generators/internal/config"
	"github.com/edoigtrd/mcp-image-generators/internal/constants"
	"github.com/edoigtrd/mcp-image-generators/internal/mcpserver"

	// Register the generator backends.
	_ "github.com/edoigtrd/mcp-image-generators/internal/imagen/flux"
	_ "github.com/edoigtrd/mcp-image-generators/internal/imagen/nanobanana"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *mcpserver.Server

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool
	Daemon    mcpserver.StaticConfig
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "MCP server exposing image generation backends",
		Long: "images-mcp exposes image generation and editing backends as MCP tools " +
			"over streamable HTTP or stdio. Generated images are mirrored to S3-compatible object storage.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := defaultStaticConfig()

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "emit logs in JSON format")

	// Daemon flags
	cmd.Flags().StringVar(&app.config.Daemon.ConfigPath, "generators-config", defaultConf.ConfigPath, "path to the generators configuration file")
	cmd.Flags().StringVar(&app.config.Daemon.Transport, "transport", defaultConf.Transport, "MCP transport to serve (http or stdio)")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server, 0 means unlimited")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	err := cmd.MarkFlagFilename("generators-config")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark generators-config flag as filename: %v", err))
	}
}

// defaultStaticConfig builds flag defaults, honoring the environment variables
// the original deployment used (IMAGESMCP_CONFIG, MCP_TRANSPORT, MCP_HOST,
// MCP_PORT).
func defaultStaticConfig() mcpserver.StaticConfig {
	return mcpserver.StaticConfig{
		ConfigPath: envOr("IMAGESMCP_CONFIG", constants.DefaultConfigPath),
		Transport:  strings.ToLower(envOr("MCP_TRANSPORT", constants.TransportHTTP)),

		ReadTimeout:    5 * time.Second,
		WriteTimeout:   0,
		MaxHeaderBytes: 1 << 13, // 8 KB

		ListenHost: envOr("MCP_HOST", constants.DefaultListenHost),
		ListenPort: envIntOr("MCP_PORT", constants.DefaultListenPort),

		MetricsPort: constants.DefaultMetricsPort,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment value", "key", key, "value", v)
		return fallback
	}
	return n
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	a.config.Daemon.ConfigPath, err = filepath.Abs(a.config.Daemon.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for config file: %v", err)
	}
	dConf := a.config.Daemon
	cm := config.New(dConf.ConfigPath)
	a.daemon, err = mcpserver.New(context.Background(), cm, dConf)
	close(a.ready)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}
