// Package main provides the scriptrun CLI entrypoint.
//
// Usage:
//
//	scriptrun <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: success
//   - 1: snippet error
//   - 2: driver crash or timeout
//   - 3: invalid input
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/cmd"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for cli.ExitCoder errors.
		os.Exit(cmd.ExitCode(err, os.Stderr))
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(cmd.ExitCode(err, os.Stderr))
}
