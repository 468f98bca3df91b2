package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/config"
	"github.com/pithecene-io/scriptrun/cli/render"
	"github.com/pithecene-io/scriptrun/cli/report"
	"github.com/pithecene-io/scriptrun/cli/tui"
	"github.com/pithecene-io/scriptrun/envelope"
	"github.com/pithecene-io/scriptrun/metrics"
	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/types"
)

// RunCommand returns the run command, which executes one snippet locally.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute one snippet and report its result",
		Flags: append(OutputFlags(),
			&cli.StringFlag{
				Name:     "lang",
				Aliases:  []string{"l"},
				Usage:    "Snippet language: javascript, typescript, python",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Path to snippet file (- reads stdin)",
			},
			&cli.StringFlag{
				Name:  "code",
				Usage: "Snippet source text",
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "Invocation input as a JSON object",
			},
			TimeoutFlag,
			CacheDirFlag,
			&cli.BoolFlag{
				Name:  "show-logs",
				Usage: "Echo captured log lines to stderr while running",
			},
			&cli.BoolFlag{
				Name:  "in-process",
				Usage: "Evaluate plain JavaScript in the embedded VM instead of a driver process",
			},
			&cli.BoolFlag{
				Name:  "record",
				Usage: "Print only the {logs, result, error} record as one JSON line",
			},
		),
		Action: runAction,
	}
}

// runChoice holds parsed run flags.
type runChoice struct {
	snippet   types.Snippet
	input     json.RawMessage
	inProcess bool
}

func parseRunChoice(c *cli.Context, cfg *config.Config, stdin io.Reader) (*runChoice, error) {
	lang, err := types.ParseLanguage(c.String("lang"))
	if err != nil {
		return nil, err
	}

	file, code := c.String("file"), c.String("code")
	if (file == "") == (code == "") {
		return nil, errors.New("exactly one of --file or --code is required")
	}
	body := code
	if file != "" {
		var data []byte
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read snippet: %w", err)
		}
		body = string(data)
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("snippet is empty")
	}

	var input json.RawMessage
	if raw := c.String("input"); raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, errors.New("--input is not valid JSON")
		}
		input = json.RawMessage(raw)
	}

	return &runChoice{
		snippet: types.Snippet{
			Language: lang,
			Body:     body,
			ShowLogs: c.Bool("show-logs") || cfg.ShowLogs,
		},
		input:     input,
		inProcess: c.Bool("in-process"),
	}, nil
}

func runAction(c *cli.Context) error {
	cfg, err := mustConfig(c)
	if err != nil {
		return err
	}
	choice, err := parseRunChoice(c, cfg, os.Stdin)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	logger := newLogger(cfg, "run")
	defer logger.Sync()
	collector := metrics.NewCollector("cli")

	var runner runtime.Runner
	if choice.inProcess {
		runner = &runtime.InProcessRunner{Logger: logger, Collector: collector}
	} else {
		runner = &runtime.ProcessRunner{
			Commands:   runtimeCommands(cfg),
			Cache:      newCache(cfg),
			Logger:     logger,
			Collector:  collector,
			StderrEcho: showLogsEcho(choice.snippet.ShowLogs),
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := runner.Run(ctx, runtime.Request{
		Snippet: choice.snippet,
		Input:   choice.input,
		Timeout: cfg.Timeout.Duration,
	})
	if err != nil {
		if errors.Is(err, runtime.ErrInProcessUnsupported) {
			return cli.Exit(fmt.Sprintf("%v (drop --in-process to use a driver)", err), exitInvalidInput)
		}
		return cli.Exit(fmt.Sprintf("execution failed: %v", err), exitCrash)
	}

	rep := report.FromRun(res)
	switch {
	case c.Bool("record"):
		if err := envelope.Emit(r.Writer(), rep.Record()); err != nil {
			return err
		}
	case c.Bool("tui"):
		if err := r.RenderTUI(tui.ViewExecution, rep); err != nil {
			return err
		}
	default:
		if err := r.Render(rep); err != nil {
			return err
		}
	}

	if code := runtime.ExitCodeForOutcome(res.Outcome.Status); code != exitSuccess {
		return cli.Exit("", code)
	}
	return nil
}

// showLogsEcho returns the live echo target for driver stderr.
func showLogsEcho(show bool) io.Writer {
	if show {
		return os.Stderr
	}
	return nil
}
