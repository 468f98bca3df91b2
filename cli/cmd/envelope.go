package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/envelope"
)

// EnvelopeCommand returns the hidden builtin driver. The runtime re-executes
// this binary with it to run plain JavaScript in a separate process.
func EnvelopeCommand() *cli.Command {
	return &cli.Command{
		Name:      "envelope",
		Usage:     "Run one snippet file and print its result record (driver entrypoint)",
		ArgsUsage: "<snippet-path|->",
		Hidden:    true,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("envelope requires exactly one snippet path", envelope.ExitInvalidInvocation)
			}
			ctx, cancel := signalContext()
			defer cancel()

			code := envelope.Main(ctx, c.Args().First(), c.App.Reader, c.App.Writer)
			if code != envelope.ExitSuccess {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}
