package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/scriptrun/envelope"
	"github.com/pithecene-io/scriptrun/log"
	"github.com/pithecene-io/scriptrun/metrics"
	"github.com/pithecene-io/scriptrun/types"
)

// DefaultTimeout bounds one execution when the caller sets none.
const DefaultTimeout = 120 * time.Second

// Executor abstracts driver process lifecycle for testing.
type Executor interface {
	Start(ctx context.Context) error
	Wait() (*ExecutorResult, error)
	Kill() error
}

// ExecutorFactory creates an Executor. Used for test injection.
type ExecutorFactory func(config *ExecutorConfig) Executor

// RunConfig configures a single execution.
type RunConfig struct {
	// ExecutionID identifies the execution in logs and events.
	// If empty, a UUID is generated.
	ExecutionID string
	// Snippet is the code to run.
	Snippet types.Snippet
	// Input is the raw JSON invocation input. Nil means {}.
	Input json.RawMessage
	// Timeout bounds the execution. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Commands locates interpreters.
	Commands RuntimeCommands
	// Cache stores snippet files. If nil, a temporary file is used per run.
	Cache *SnippetCache
	// ExecutorFactory overrides executor creation (for testing).
	// If nil, uses NewExecutorManager.
	ExecutorFactory ExecutorFactory
	// StderrEcho receives the driver's stderr live (show-logs mirror).
	StderrEcho io.Writer
	// Logger receives runtime diagnostics. If nil, logging is discarded.
	Logger *log.Logger
	// Collector records execution metrics. Nil-safe.
	Collector *metrics.Collector
}

// RunResult represents the result of one execution.
type RunResult struct {
	// ExecutionID identifies the execution.
	ExecutionID string `json:"execution_id"`
	// Language is the snippet language.
	Language types.Language `json:"language"`
	// Driver is the driver that ran the snippet.
	Driver string `json:"driver"`
	// Outcome classifies the end state.
	Outcome *Outcome `json:"outcome"`
	// Result is the snippet's execution record.
	Result types.ExecutionResult `json:"result"`
	// ExitCode is the driver exit code (-1 when not applicable).
	ExitCode int `json:"exit_code"`
	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
	// Dependencies lists third-party packages requested for the driver.
	Dependencies []string `json:"dependencies,omitempty"`
	// CacheHit reports whether the snippet file was reused.
	CacheHit bool `json:"cache_hit"`
	// StderrOutput is the captured driver stderr.
	StderrOutput string `json:"stderr,omitempty"`
}

// RunOrchestrator orchestrates a single execution through a driver process.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if the snippet is unusable.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if strings.TrimSpace(config.Snippet.Body) == "" {
		return nil, errors.New("snippet body is empty")
	}
	if config.Input != nil && !json.Valid(config.Input) {
		return nil, errors.New("invocation input is not valid JSON")
	}
	if config.ExecutionID == "" {
		config.ExecutionID = uuid.NewString()
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}

	return &RunOrchestrator{
		config: config,
		logger: logger.With(map[string]any{
			"execution_id": config.ExecutionID,
			"language":     string(config.Snippet.Language),
		}),
	}, nil
}

// Execute runs the snippet end-to-end.
//
// Execution flow:
//  1. Store the snippet file (cache or temp file)
//  2. Build the driver command for the language
//  3. Start the driver with INPUT_JSON and the show-logs flag
//  4. Wait for exit or deadline
//  5. Extract the last result record from stdout
//  6. Classify the outcome
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	snippet := r.config.Snippet
	r.config.Collector.IncExecutionStarted(string(snippet.Language))

	path, hit, cleanup, err := r.storeSnippet()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var deps []string
	if snippet.Language == types.LanguagePython {
		deps = PythonDependencies(snippet.Body)
	}

	execConfig, driver, err := r.config.Commands.Build(snippet, path, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build driver command: %w", err)
	}
	execConfig.Env = append(execConfig.Env,
		envelope.InputEnv+"="+string(r.config.Input),
		envelope.ShowLogsEnv+"="+boolEnv(snippet.ShowLogs),
	)
	execConfig.StderrEcho = r.config.StderrEcho

	r.logger.Info("starting execution", map[string]any{
		"driver":       driver,
		"command":      execConfig.Command,
		"cache_hit":    hit,
		"dependencies": deps,
	})

	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var exec Executor
	if r.config.ExecutorFactory != nil {
		exec = r.config.ExecutorFactory(execConfig)
	} else {
		exec = NewExecutorManager(execConfig)
	}

	base := &RunResult{
		ExecutionID:  r.config.ExecutionID,
		Language:     snippet.Language,
		Driver:       driver,
		ExitCode:     -1,
		Dependencies: deps,
		CacheHit:     hit,
	}

	if err := exec.Start(runCtx); err != nil {
		r.config.Collector.IncExecutorLaunchFailure()
		r.logger.Error("failed to start driver", map[string]any{"error": err.Error()})
		msg := fmt.Sprintf("failed to start %s driver: %v", driver, err)
		return r.finish(base, &Outcome{Status: OutcomeExecutorCrash, Message: msg}, types.Failed(nil, msg)), nil
	}
	r.config.Collector.IncExecutorLaunchSuccess()

	execResult, waitErr := exec.Wait()
	if waitErr != nil {
		r.logger.Error("driver wait failed", map[string]any{"error": waitErr.Error()})
		msg := fmt.Sprintf("driver wait failed: %v", waitErr)
		return r.finish(base, &Outcome{Status: OutcomeExecutorCrash, Message: msg}, types.Failed(nil, msg)), nil
	}

	base.ExitCode = execResult.ExitCode
	base.StderrOutput = string(execResult.StderrBytes)
	stdout := string(execResult.StdoutBytes)

	record, parseErr := types.ParseResultLine(stdout)

	// Deadline and cancellation take precedence over whatever the driver
	// managed to print before it was killed.
	if ctxErr := runCtx.Err(); ctxErr != nil {
		_ = exec.Kill()
		var logs []string
		if parseErr == nil {
			logs = record.Logs
		}
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			msg := fmt.Sprintf("execution timed out after %s", timeout)
			return r.finish(base, &Outcome{Status: OutcomeTimeout, Message: msg}, types.Failed(logs, msg)), nil
		}
		msg := fmt.Sprintf("execution cancelled: %v", ctx.Err())
		return r.finish(base, &Outcome{Status: OutcomeExecutorCrash, Message: msg}, types.Failed(logs, msg)), nil
	}

	if parseErr != nil {
		r.logger.Warn("no result record in driver output", map[string]any{
			"exit_code": execResult.ExitCode,
		})
		fallback := fallbackResult(stdout, base.StderrOutput)
		outcome := DetermineOutcome(execResult.ExitCode, nil)
		return r.finish(base, outcome, fallback), nil
	}

	outcome := DetermineOutcome(execResult.ExitCode, &record)
	if (outcome.Status == OutcomeSuccess) != record.OK() {
		r.logger.Warn("exit code conflicts with result record", map[string]any{
			"exit_code": execResult.ExitCode,
			"outcome":   outcome.Status,
		})
	}
	return r.finish(base, outcome, record), nil
}

// fallbackResult builds a record when the driver printed none: stdout lines
// become logs and stderr explains the failure.
func fallbackResult(stdout, stderr string) types.ExecutionResult {
	var logs []string
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) != "" {
			logs = append(logs, strings.TrimRight(line, "\r"))
		}
	}
	return types.Failed(logs, "failed to extract structured output: "+strings.TrimSpace(stderr))
}

func (r *RunOrchestrator) storeSnippet() (string, bool, func(), error) {
	snippet := r.config.Snippet
	if r.config.Cache != nil {
		path, hit, err := r.config.Cache.Put(snippet)
		if err != nil {
			return "", false, nil, fmt.Errorf("failed to cache snippet: %w", err)
		}
		if hit {
			r.config.Collector.IncCacheHit()
		} else {
			r.config.Collector.IncCacheMiss()
		}
		return path, hit, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "scriptrun-snippet-*")
	if err != nil {
		return "", false, nil, fmt.Errorf("failed to create snippet directory: %w", err)
	}
	path := filepath.Join(dir, "snippet"+snippet.Language.Extension())
	if err := os.WriteFile(path, []byte(snippet.Body), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return "", false, nil, fmt.Errorf("failed to write snippet: %w", err)
	}
	return path, false, func() { _ = os.RemoveAll(dir) }, nil
}

// finish stamps duration, records metrics and logs the outcome.
func (r *RunOrchestrator) finish(res *RunResult, outcome *Outcome, record types.ExecutionResult) *RunResult {
	res.Outcome = outcome
	res.Result = record
	res.Duration = time.Since(r.startTime)
	recordOutcome(r.config.Collector, outcome.Status)

	r.logger.Info("execution finished", map[string]any{
		"outcome":   outcome.Status,
		"exit_code": res.ExitCode,
		"duration":  res.Duration.String(),
	})
	return res
}

func recordOutcome(c *metrics.Collector, status OutcomeStatus) {
	switch status {
	case OutcomeSuccess:
		c.IncExecutionSucceeded()
	case OutcomeSnippetError:
		c.IncExecutionFailed()
	case OutcomeTimeout:
		c.IncExecutionTimedOut()
	default:
		c.IncExecutionCrashed()
	}
}

func boolEnv(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
