package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/pithecene-io/scriptrun/iox"
)

// DefaultOutputLimit bounds captured stdout and stderr per execution.
const DefaultOutputLimit = 16 * 1024 * 1024

// waitDelay bounds how long Wait blocks on pipes held open by grandchildren
// after the direct child has exited or been killed.
const waitDelay = 2 * time.Second

// ExecutorConfig configures one driver process.
type ExecutorConfig struct {
	// Command is the binary to launch.
	Command string
	// Args are passed to Command.
	Args []string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env []string
	// Dir is the working directory. Empty inherits the current one.
	Dir string
	// Stdin is written to the child and then closed. Nil gives an empty stdin.
	Stdin []byte
	// StderrEcho additionally receives the child's stderr live.
	StderrEcho io.Writer
	// OutputLimit caps captured bytes per stream. Zero selects DefaultOutputLimit.
	OutputLimit int
}

// ExecutorResult represents the result of a driver process.
type ExecutorResult struct {
	// ExitCode is the process exit code (-1 when killed by a signal).
	ExitCode int
	// StdoutBytes is the captured stdout, tail-truncated at the limit.
	StdoutBytes []byte
	// StderrBytes is the captured stderr, tail-truncated at the limit.
	StderrBytes []byte
}

// ExecutorManager manages one driver process lifecycle.
type ExecutorManager struct {
	config *ExecutorConfig
	cmd    *exec.Cmd
	stdout *iox.TailBuffer
	stderr *iox.TailBuffer
}

// NewExecutorManager creates a new executor manager.
func NewExecutorManager(config *ExecutorConfig) *ExecutorManager {
	return &ExecutorManager{config: config}
}

// Start starts the driver process. The context kills the process (and its
// process group where supported) when done.
func (m *ExecutorManager) Start(ctx context.Context) error {
	if m.config.Command == "" {
		return errors.New("executor command is empty")
	}

	limit := m.config.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	m.stdout = &iox.TailBuffer{Max: limit}
	m.stderr = &iox.TailBuffer{Max: limit}

	m.cmd = exec.CommandContext(ctx, m.config.Command, m.config.Args...)
	m.cmd.Dir = m.config.Dir
	m.cmd.Env = deduplicateEnv(append(os.Environ(), m.config.Env...))
	m.cmd.Stdout = m.stdout
	if m.config.StderrEcho != nil {
		m.cmd.Stderr = io.MultiWriter(m.stderr, m.config.StderrEcho)
	} else {
		m.cmd.Stderr = m.stderr
	}
	if m.config.Stdin != nil {
		m.cmd.Stdin = strings.NewReader(string(m.config.Stdin))
	}
	m.cmd.WaitDelay = waitDelay
	configureProcess(m.cmd)

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start executor: %w", err)
	}
	return nil
}

// Wait waits for the driver to exit and returns the result.
// Must be called after Start.
func (m *ExecutorManager) Wait() (*ExecutorResult, error) {
	if m.cmd == nil {
		return nil, errors.New("executor not started")
	}

	err := m.cmd.Wait()

	result := &ExecutorResult{
		StdoutBytes: []byte(m.stdout.String()),
		StderrBytes: []byte(m.stderr.String()),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				result.ExitCode = status.ExitStatus()
			} else {
				result.ExitCode = exitErr.ExitCode()
			}
		case errors.Is(err, exec.ErrWaitDelay):
			// Exited, but a descendant kept the output pipes open.
			result.ExitCode = m.cmd.ProcessState.ExitCode()
		default:
			return nil, fmt.Errorf("executor wait failed: %w", err)
		}
	}

	return result, nil
}

// Kill terminates the driver process.
func (m *ExecutorManager) Kill() error {
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each env var key so appended
// values (INPUT_JSON, SCRIPTRUN_SHOW_LOGS) win over inherited duplicates.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
