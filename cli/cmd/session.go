package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/tui"
	"github.com/pithecene-io/scriptrun/ipc"
	"github.com/pithecene-io/scriptrun/session"
)

// SessionCommand returns the interactive session command. It spawns a
// worker, performs the handshake and forwards each stdin line as a request.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Drive a worker interactively: one JSON-RPC request per line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "worker",
				Usage: "Worker command (default: this binary)",
			},
			&cli.StringSliceFlag{
				Name:  "worker-arg",
				Usage: "Worker argument (repeatable, default: serve)",
			},
			&cli.StringFlag{
				Name:  "client-name",
				Usage: "Client name sent in initialize",
				Value: "scriptrun-session",
			},
			&cli.DurationFlag{
				Name:  "request-timeout",
				Usage: "Bound on each request issued by the session itself (default 150s)",
			},
			NoColorFlag,
		},
		Action: sessionAction,
	}
}

func sessionAction(c *cli.Context) error {
	cfg, err := mustConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, "session")
	defer logger.Sync()

	command, args := cfg.Worker.Command, cfg.Worker.Args
	if c.IsSet("worker") {
		command, args = c.String("worker"), nil
	}
	if c.IsSet("worker-arg") {
		args = c.StringSlice("worker-arg")
	}
	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot locate worker binary: %v", err), exitCrash)
		}
		command = self
		if len(args) == 0 {
			args = []string{"serve"}
		}
	}
	timeout := cfg.Worker.RequestTimeout.Duration
	if c.IsSet("request-timeout") {
		timeout = c.Duration("request-timeout")
	}

	out := newEventPrinter(c.App.Writer, c.App.ErrWriter, c.Bool("no-color"))
	s := session.New(session.Config{
		Command:     command,
		Args:        args,
		Handler:     out.handle,
		CallTimeout: timeout,
		Logger:      logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	if err := s.Start(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("failed to start worker: %v", err), exitCrash)
	}
	info, err := s.Initialize(ctx, c.String("client-name"))
	if err != nil {
		_ = s.Close(ctx)
		return cli.Exit(err.Error(), exitCrash)
	}
	out.notice(fmt.Sprintf("connected to %s %s (protocol %s); type exit or quit to leave",
		info.ServerInfo.Name, info.ServerInfo.Version, info.ProtocolVersion))

	forwardLines(ctx.Done(), s, os.Stdin, out)

	if err := s.Close(ctx); err != nil {
		logger.Warn("session close interrupted", map[string]any{"error": err.Error()})
	}
	if code, ok := s.ExitCode(); ok {
		out.notice(fmt.Sprintf("worker exited with code %d", code))
	}
	return nil
}

// forwardLines submits each stdin line until exit/quit, EOF, cancellation or
// worker exit.
func forwardLines(stop <-chan struct{}, s *session.Session, in io.Reader, out *eventPrinter) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), ipc.MaxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-s.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-stop:
			return
		case <-s.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "exit", "quit":
				return
			}
			if err := s.Submit([]byte(line)); err != nil {
				out.failure(err)
				if errors.Is(err, session.ErrClosed) {
					return
				}
			}
		}
	}
}

// eventPrinter renders session events. Handler calls are serialized by the
// session.
type eventPrinter struct {
	out, diag io.Writer
	plain     bool
}

func newEventPrinter(out, diag io.Writer, plain bool) *eventPrinter {
	return &eventPrinter{out: out, diag: diag, plain: plain}
}

func (p *eventPrinter) style(s string, render func(...string) string) string {
	if p.plain {
		return s
	}
	return render(s)
}

func (p *eventPrinter) handle(ev session.Event) {
	switch ev.Kind {
	case session.EventMessage:
		raw, _ := jsonLine(ev.Message)
		prefix := "<-"
		if ev.ID != "" {
			prefix = fmt.Sprintf("<- [%s %s]", ev.ID, ev.Method)
		}
		render := tui.SuccessStyle.Render
		if ev.Message.Error != nil {
			render = tui.ErrorStyle.Render
		}
		_, _ = fmt.Fprintf(p.out, "%s %s\n", p.style(prefix, render), raw)
	case session.EventRaw:
		_, _ = fmt.Fprintf(p.out, "%s %s\n", p.style("worker:", tui.WarningStyle.Render), ev.Text)
	case session.EventDiagnostic:
		_, _ = fmt.Fprintf(p.diag, "%s %s\n", p.style("stderr:", tui.HelpStyle.UnsetMarginTop().Render), ev.Text)
	case session.EventExit:
		// Reported once the session is closed.
	}
}

func (p *eventPrinter) notice(msg string) {
	_, _ = fmt.Fprintln(p.out, p.style(msg, tui.TitleStyle.UnsetMarginBottom().Render))
}

func (p *eventPrinter) failure(err error) {
	_, _ = fmt.Fprintf(p.diag, "%s %v\n", p.style("error:", tui.ErrorStyle.Render), err)
}

func jsonLine(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
