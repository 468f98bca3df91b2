package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/scriptrun/envelope"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/metrics"
	"github.com/pithecene-io/scriptrun/types"
)

// Request is one execution request handed to a Runner.
type Request struct {
	// ExecutionID identifies the execution. If empty, a UUID is generated.
	ExecutionID string
	// Snippet is the code to run.
	Snippet types.Snippet
	// Input is the raw JSON invocation input. Nil means {}.
	Input json.RawMessage
	// Timeout bounds the execution. Zero selects DefaultTimeout.
	Timeout time.Duration
}

// Runner executes snippets. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, req Request) (*RunResult, error)
}

// ProcessRunner runs every snippet in a fresh driver process.
type ProcessRunner struct {
	Commands  RuntimeCommands
	Cache     *SnippetCache
	Logger    *log.Logger
	Collector *metrics.Collector
	// ExecutorFactory overrides executor creation (for testing).
	ExecutorFactory ExecutorFactory
	// StderrEcho mirrors driver stderr live, which carries echoed logs
	// when a snippet sets ShowLogs.
	StderrEcho io.Writer
}

// Run implements Runner.
func (p *ProcessRunner) Run(ctx context.Context, req Request) (*RunResult, error) {
	orch, err := NewRunOrchestrator(&RunConfig{
		ExecutionID:     req.ExecutionID,
		Snippet:         req.Snippet,
		Input:           req.Input,
		Timeout:         req.Timeout,
		Commands:        p.Commands,
		Cache:           p.Cache,
		ExecutorFactory: p.ExecutorFactory,
		StderrEcho:      p.StderrEcho,
		Logger:          p.Logger,
		Collector:       p.Collector,
	})
	if err != nil {
		return nil, err
	}
	return orch.Execute(ctx)
}

// ErrInProcessUnsupported is returned when a snippet needs an external driver.
var ErrInProcessUnsupported = errors.New("snippet requires an external driver")

// InProcessRunner evaluates plain JavaScript inside the current process.
// TypeScript, Python and module-style JavaScript are rejected.
type InProcessRunner struct {
	Logger    *log.Logger
	Collector *metrics.Collector
}

// Run implements Runner.
func (p *InProcessRunner) Run(ctx context.Context, req Request) (*RunResult, error) {
	snippet := req.Snippet
	if snippet.Language != types.LanguageJavaScript {
		return nil, fmt.Errorf("%w: language %s", ErrInProcessUnsupported, snippet.Language)
	}
	if IsModuleStyle(snippet.Body) {
		return nil, fmt.Errorf("%w: module syntax", ErrInProcessUnsupported)
	}
	if req.Input != nil && !json.Valid(req.Input) {
		return nil, errors.New("invocation input is not valid JSON")
	}

	id := req.ExecutionID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := p.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(map[string]any{"execution_id": id, "language": string(snippet.Language)})
	p.Collector.IncExecutionStarted(string(snippet.Language))
	logger.Info("starting execution", map[string]any{"driver": DriverBuiltin, "in_process": true})

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	record := envelope.Run(runCtx, snippet.Body, envelope.Options{
		Input:    string(req.Input),
		ShowLogs: snippet.ShowLogs,
	})

	var outcome *Outcome
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = &Outcome{Status: OutcomeTimeout, Message: fmt.Sprintf("execution timed out after %s", timeout)}
	default:
		outcome = DetermineOutcome(envelope.ExitCodeFor(record), &record)
	}
	recordOutcome(p.Collector, outcome.Status)

	res := &RunResult{
		ExecutionID: id,
		Language:    snippet.Language,
		Driver:      DriverBuiltin,
		Outcome:     outcome,
		Result:      record,
		ExitCode:    envelope.ExitCodeFor(record),
		Duration:    time.Since(start),
	}
	logger.Info("execution finished", map[string]any{
		"outcome":  outcome.Status,
		"duration": res.Duration.String(),
	})
	return res, nil
}
