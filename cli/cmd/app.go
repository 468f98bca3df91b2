package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/types"
)

// NewApp assembles the scriptrun CLI.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "scriptrun",
		Usage:   "Run JavaScript, TypeScript and Python snippets and serve them as tools",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			RunCommand(),
			ServeCommand(),
			SessionCommand(),
			CacheCommand(),
			WarmupCommand(),
			EnvelopeCommand(),
			VersionCommand(commit),
		},
	}
}

// ExitCode maps an error returned by the app to a process exit code and
// writes its message to w. Messages of bare cli.Exit("", N) errors are
// suppressed.
func ExitCode(err error, w io.Writer) int {
	if err == nil {
		return exitSuccess
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// Skip bare codes such as cli.Exit("", N).
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(w, msg)
		}
		return code
	}

	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return exitSnippetError
}
