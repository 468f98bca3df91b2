package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/scriptrun/adapter/redis"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/runtime"
)

// DefaultFile is looked up in the working directory when no --config is given.
const DefaultFile = "scriptrun.yaml"

// Config represents a scriptrun.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Timeout     Duration       `yaml:"timeout"`
	CacheDir    string         `yaml:"cache_dir"`
	NoCache     bool           `yaml:"no_cache"`
	ShowLogs    bool           `yaml:"show_logs"`
	LogLevel    string         `yaml:"log_level"`
	Concurrency int            `yaml:"concurrency"`
	Runtimes    RuntimesConfig `yaml:"runtimes"`
	Worker      WorkerConfig   `yaml:"worker"`
	Adapter     AdapterConfig  `yaml:"adapter"`
}

// RuntimesConfig overrides the interpreters used by each driver.
type RuntimesConfig struct {
	Deno   CommandConfig `yaml:"deno"`
	Python PythonConfig  `yaml:"python"`

	// JavaScriptDriver is auto, deno or builtin.
	JavaScriptDriver string `yaml:"javascript_driver"`
}

// CommandConfig is an executable plus leading arguments.
type CommandConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// PythonConfig locates uv and the interpreter version it should provide.
type PythonConfig struct {
	Command string `yaml:"command"`
	Version string `yaml:"version"`
}

// WorkerConfig configures the worker spawned by `scriptrun session`.
type WorkerConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args,omitempty"`
	ID             string   `yaml:"id"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Mode    string            `yaml:"mode,omitempty"`
	MaxLen  int64             `yaml:"max_len,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout.Duration)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %q (must be debug, info, warn or error)", c.LogLevel)
	}
	switch c.Runtimes.JavaScriptDriver {
	case "", runtime.JSDriverAuto, runtime.JSDriverDeno, runtime.JSDriverBuiltin:
	default:
		return fmt.Errorf("invalid runtimes.javascript_driver: %q (must be auto, deno or builtin)", c.Runtimes.JavaScriptDriver)
	}
	if c.Worker.RequestTimeout.Duration < 0 {
		return fmt.Errorf("worker.request_timeout must be >= 0, got %s", c.Worker.RequestTimeout.Duration)
	}
	return c.Adapter.Validate()
}

// Validate checks adapter fields for the selected type.
func (a *AdapterConfig) Validate() error {
	switch a.Type {
	case "":
		return nil
	case "webhook", "redis":
	default:
		return fmt.Errorf("invalid adapter.type: %q (must be webhook or redis)", a.Type)
	}
	if a.URL == "" {
		return fmt.Errorf("adapter.url is required for %s adapter", a.Type)
	}
	if a.Retries != nil && *a.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *a.Retries)
	}
	if a.Type == "redis" {
		switch a.Mode {
		case "", redis.ModePublish, redis.ModeList:
		default:
			return fmt.Errorf("invalid adapter.mode: %q (must be publish or list)", a.Mode)
		}
	}
	return nil
}

// ApplyRuntimes overlays configured interpreters onto base.
func (c *Config) ApplyRuntimes(base runtime.RuntimeCommands) runtime.RuntimeCommands {
	if c.Runtimes.Deno.Command != "" {
		base.Deno = c.Runtimes.Deno.Command
	}
	if len(c.Runtimes.Deno.Args) > 0 {
		base.DenoArgs = c.Runtimes.Deno.Args
	}
	if c.Runtimes.Python.Command != "" {
		base.UV = c.Runtimes.Python.Command
	}
	if c.Runtimes.Python.Version != "" {
		base.PythonVersion = c.Runtimes.Python.Version
	}
	if c.Runtimes.JavaScriptDriver != "" {
		base.JavaScriptDriver = c.Runtimes.JavaScriptDriver
	}
	return base
}

// LoggerOptions builds logger options for a component.
func (c *Config) LoggerOptions(component string) log.Options {
	return log.Options{
		Level:  c.LogLevel,
		Fields: map[string]string{"component": component},
	}
}
