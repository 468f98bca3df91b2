// Package cmd provides CLI commands for the scriptrun binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for commands with a TUI view (run, cache list).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (run, cache list only)",
	}

	// ConfigFlag points at a scriptrun.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./scriptrun.yaml if present)",
		EnvVars: []string{"SCRIPTRUN_CONFIG"},
	}

	// LogLevelFlag overrides log_level from the config file.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		EnvVars: []string{"SCRIPTRUN_LOG_LEVEL"},
	}

	// CacheDirFlag overrides cache_dir from the config file.
	CacheDirFlag = &cli.StringFlag{
		Name:  "cache-dir",
		Usage: "Snippet cache directory",
	}

	// TimeoutFlag overrides the per-execution timeout.
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Per-execution timeout (default 120s)",
	}
)

// GlobalFlags are accepted by every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, LogLevelFlag}
}

// OutputFlags returns the shared flags for commands that render a payload.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}
