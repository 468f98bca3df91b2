package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/render"
	"github.com/pithecene-io/scriptrun/cli/report"
	"github.com/pithecene-io/scriptrun/runtime"
)

// WarmupCommand returns the warmup command. It prepares the drivers and
// interpreters so the first execution does not pay for downloads.
func WarmupCommand() *cli.Command {
	return &cli.Command{
		Name:   "warmup",
		Usage:  "Extract drivers and install interpreters ahead of the first run",
		Flags:  []cli.Flag{FormatFlag, NoColorFlag},
		Action: warmupAction,
	}
}

func warmupAction(c *cli.Context) error {
	cfg, err := mustConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	logger := newLogger(cfg, "warmup")
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	steps := report.WarmupSteps(runtime.Warmup(ctx, runtimeCommands(cfg), logger))
	if err := r.Render(steps); err != nil {
		return err
	}
	if report.WarmupFailed(steps) {
		return cli.Exit("", exitSnippetError)
	}
	return nil
}
