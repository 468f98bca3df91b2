package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/config"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/runtime"
)

// Exit codes shared by every command.
const (
	exitSuccess      = runtime.ExitCodeCompleted
	exitSnippetError = runtime.ExitCodeError
	exitCrash        = runtime.ExitCodeCrash
	exitInvalidInput = runtime.ExitCodeInvalidInput
)

// loadConfig resolves the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Resolve(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = config.Duration{Duration: c.Duration("timeout")}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mustConfig wraps loadConfig failures as invalid-input exits.
func mustConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}
	return cfg, nil
}

// newLogger builds the stderr logger for a command.
func newLogger(cfg *config.Config, component string) *log.Logger {
	return log.NewLogger(cfg.LoggerOptions(component))
}

// newCache returns the snippet cache, or nil when caching is disabled.
func newCache(cfg *config.Config) *runtime.SnippetCache {
	if cfg.NoCache {
		return nil
	}
	dir := cfg.CacheDir
	if dir == "" {
		dir = runtime.DefaultCacheDir()
	}
	return runtime.NewSnippetCache(dir)
}

// runtimeCommands resolves interpreters with config overrides applied.
func runtimeCommands(cfg *config.Config) runtime.RuntimeCommands {
	return cfg.ApplyRuntimes(runtime.DefaultRuntimeCommands())
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
