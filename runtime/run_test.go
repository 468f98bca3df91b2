package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/scriptrun/metrics"
	"github.com/pithecene-io/scriptrun/types"
)

// mockExecutor is a test executor that produces configurable stdout.
// A blocking mock holds Wait() until killed, released, or its start
// context ends, the way a real process is reaped on deadline.
type mockExecutor struct {
	mu          sync.Mutex
	stdout      []byte
	stderr      []byte
	started     bool
	killed      bool
	exitCode    int
	startErr    error
	waitErr     error
	ctx         context.Context
	killChan    chan struct{}
	releaseChan chan struct{}
	blockOnWait bool
	config      *ExecutorConfig
}

func newMockExecutor(stdout string, exitCode int) *mockExecutor {
	return &mockExecutor{
		stdout:      []byte(stdout),
		exitCode:    exitCode,
		killChan:    make(chan struct{}),
		releaseChan: make(chan struct{}),
	}
}

func newBlockingMockExecutor(stdout string, exitCode int) *mockExecutor {
	m := newMockExecutor(stdout, exitCode)
	m.blockOnWait = true
	return m
}

func (m *mockExecutor) factory() ExecutorFactory {
	return func(config *ExecutorConfig) Executor {
		m.mu.Lock()
		m.config = config
		m.mu.Unlock()
		return m
	}
}

func (m *mockExecutor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	m.ctx = ctx
	return nil
}

func (m *mockExecutor) Wait() (*ExecutorResult, error) {
	if m.blockOnWait {
		select {
		case <-m.killChan:
		case <-m.releaseChan:
		case <-m.ctx.Done():
			return &ExecutorResult{ExitCode: -1, StdoutBytes: m.stdout}, nil
		}
	}
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &ExecutorResult{
		ExitCode:    m.exitCode,
		StdoutBytes: m.stdout,
		StderrBytes: m.stderr,
	}, nil
}

func (m *mockExecutor) Kill() error {
	m.mu.Lock()
	alreadyKilled := m.killed
	m.killed = true
	m.mu.Unlock()

	if !alreadyKilled {
		close(m.killChan)
	}
	return nil
}

func (m *mockExecutor) WasKilled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killed
}

func (m *mockExecutor) Config() *ExecutorConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

func recordLine(t *testing.T, res types.ExecutionResult) string {
	t.Helper()
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return string(data) + "\n"
}

func testCommands() RuntimeCommands {
	return RuntimeCommands{
		Self:          []string{"/fake/scriptrun", "envelope"},
		Deno:          "/fake/deno",
		UV:            "/fake/uv",
		PythonVersion: DefaultPythonVersion,
	}
}

func jsSnippet(body string) types.Snippet {
	return types.Snippet{Language: types.LanguageJavaScript, Body: body}
}

func TestRunOrchestrator_SuccessfulRun(t *testing.T) {
	stdout := "noise before\n" + recordLine(t, types.Succeeded([]string{"hi"}, types.StringPtr("42")))
	mockExec := newMockExecutor(stdout, ExitCodeCompleted)
	collector := metrics.NewCollector("test")

	orch, err := NewRunOrchestrator(&RunConfig{
		ExecutionID:     "exec-1",
		Snippet:         jsSnippet("function handler(input) { return 42; }"),
		Input:           json.RawMessage(`{"a":1}`),
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
		Collector:       collector,
	})
	if err != nil {
		t.Fatalf("NewRunOrchestrator: %v", err)
	}

	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != OutcomeSuccess {
		t.Errorf("outcome = %s, want success (%s)", result.Outcome.Status, result.Outcome.Message)
	}
	if result.Result.Result == nil || *result.Result.Result != "42" {
		t.Errorf("result = %v, want 42", result.Result.Result)
	}
	if len(result.Result.Logs) != 1 || result.Result.Logs[0] != "hi" {
		t.Errorf("logs = %v, want [hi]", result.Result.Logs)
	}
	if result.Driver != DriverBuiltin {
		t.Errorf("driver = %q, want %q", result.Driver, DriverBuiltin)
	}
	if result.ExecutionID != "exec-1" {
		t.Errorf("execution id = %q", result.ExecutionID)
	}

	snap := collector.Snapshot()
	if snap.ExecutionsStarted != 1 || snap.ExecutionsSucceeded != 1 {
		t.Errorf("started=%d succeeded=%d, want 1/1", snap.ExecutionsStarted, snap.ExecutionsSucceeded)
	}
	if snap.ExecutorLaunchSuccess != 1 {
		t.Errorf("launch success = %d, want 1", snap.ExecutorLaunchSuccess)
	}
}

func TestRunOrchestrator_PassesInputAndShowLogsEnv(t *testing.T) {
	mockExec := newMockExecutor(recordLine(t, types.Succeeded(nil, nil)), 0)
	snippet := jsSnippet("function main() {}")
	snippet.ShowLogs = true

	orch, err := NewRunOrchestrator(&RunConfig{
		Snippet:         snippet,
		Input:           json.RawMessage(`{"x":"y"}`),
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
	})
	if err != nil {
		t.Fatalf("NewRunOrchestrator: %v", err)
	}
	if _, err := orch.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	env := strings.Join(mockExec.Config().Env, "\n")
	if !strings.Contains(env, `INPUT_JSON={"x":"y"}`) {
		t.Errorf("env missing INPUT_JSON: %s", env)
	}
	if !strings.Contains(env, "SCRIPTRUN_SHOW_LOGS=true") {
		t.Errorf("env missing show-logs flag: %s", env)
	}
	if mockExec.Config().Command != "/fake/scriptrun" {
		t.Errorf("command = %q, want self", mockExec.Config().Command)
	}
}

func TestRunOrchestrator_SnippetError(t *testing.T) {
	stdout := recordLine(t, types.Failed([]string{"before"}, "Error: boom"))
	mockExec := newMockExecutor(stdout, ExitCodeError)

	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet:         jsSnippet("function handler() { throw new Error('boom'); }"),
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
	})
	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != OutcomeSnippetError {
		t.Errorf("outcome = %s, want snippet_error", result.Outcome.Status)
	}
	if result.Outcome.Message != "Error: boom" {
		t.Errorf("message = %q", result.Outcome.Message)
	}
	if result.Result.Result != nil {
		t.Error("result should be nil on error")
	}
}

func TestRunOrchestrator_MissingRecordFallsBack(t *testing.T) {
	mockExec := newMockExecutor("partial line\nanother\n", ExitCodeCrash)
	mockExec.stderr = []byte("Traceback: something broke\n")

	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet:         types.Snippet{Language: types.LanguagePython, Body: "def handler(i):\n    pass\n"},
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
	})
	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != OutcomeExecutorCrash {
		t.Errorf("outcome = %s, want executor_crash", result.Outcome.Status)
	}
	want := []string{"partial line", "another"}
	if len(result.Result.Logs) != len(want) {
		t.Fatalf("logs = %v, want %v", result.Result.Logs, want)
	}
	for i := range want {
		if result.Result.Logs[i] != want[i] {
			t.Errorf("logs[%d] = %q, want %q", i, result.Result.Logs[i], want[i])
		}
	}
	if result.Result.Error == nil || !strings.HasPrefix(*result.Result.Error, "failed to extract structured output: Traceback") {
		t.Errorf("error = %v", result.Result.Error)
	}
	if result.Driver != DriverPython {
		t.Errorf("driver = %q, want python", result.Driver)
	}
}

func TestRunOrchestrator_ExitCodeConflictWithRecord(t *testing.T) {
	// Exit 0 with an error record: the record's message wins, category is snippet error.
	stdout := recordLine(t, types.Failed(nil, "late failure"))
	mockExec := newMockExecutor(stdout, ExitCodeCompleted)

	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet:         jsSnippet("x"),
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
	})
	result, _ := orch.Execute(context.Background())
	if result.Outcome.Status != OutcomeSnippetError {
		t.Errorf("outcome = %s, want snippet_error", result.Outcome.Status)
	}
}

func TestRunOrchestrator_Timeout(t *testing.T) {
	mockExec := newBlockingMockExecutor("", 0)
	collector := metrics.NewCollector("test")

	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet:         jsSnippet("function handler() { while (true) {} }"),
		Timeout:         20 * time.Millisecond,
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
		Collector:       collector,
	})
	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != OutcomeTimeout {
		t.Errorf("outcome = %s, want timeout", result.Outcome.Status)
	}
	if result.Result.Error == nil || !strings.Contains(*result.Result.Error, "timed out") {
		t.Errorf("error = %v", result.Result.Error)
	}
	if !mockExec.WasKilled() {
		t.Error("executor should be killed on timeout")
	}
	if collector.Snapshot().ExecutionsTimedOut != 1 {
		t.Error("timeout not counted")
	}
}

func TestRunOrchestrator_StartFailure(t *testing.T) {
	mockExec := newMockExecutor("", 0)
	mockExec.startErr = errors.New("exec: \"deno\": executable file not found in $PATH")
	collector := metrics.NewCollector("test")

	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet:         types.Snippet{Language: types.LanguageTypeScript, Body: "export function handler() {}"},
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
		Collector:       collector,
	})
	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != OutcomeExecutorCrash {
		t.Errorf("outcome = %s, want executor_crash", result.Outcome.Status)
	}
	if result.Result.Error == nil || !strings.Contains(*result.Result.Error, "failed to start deno driver") {
		t.Errorf("error = %v", result.Result.Error)
	}
	if collector.Snapshot().ExecutorLaunchFailure != 1 {
		t.Error("launch failure not counted")
	}
}

func TestRunOrchestrator_WaitError(t *testing.T) {
	mockExec := newMockExecutor("", 0)
	mockExec.waitErr = errors.New("wait failed")

	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet:         jsSnippet("x"),
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
	})
	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != OutcomeExecutorCrash {
		t.Errorf("outcome = %s, want executor_crash", result.Outcome.Status)
	}
}

func TestRunOrchestrator_UsesCache(t *testing.T) {
	cache := NewSnippetCache(t.TempDir())
	collector := metrics.NewCollector("test")
	snippet := jsSnippet("function handler() { return 1; }")

	for i, wantHit := range []bool{false, true} {
		mockExec := newMockExecutor(recordLine(t, types.Succeeded(nil, types.StringPtr("1"))), 0)
		orch, _ := NewRunOrchestrator(&RunConfig{
			Snippet:         snippet,
			Commands:        testCommands(),
			Cache:           cache,
			ExecutorFactory: mockExec.factory(),
			Collector:       collector,
		})
		result, err := orch.Execute(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if result.CacheHit != wantHit {
			t.Errorf("run %d: cache hit = %v, want %v", i, result.CacheHit, wantHit)
		}
	}

	snap := collector.Snapshot()
	if snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", snap.CacheHits, snap.CacheMisses)
	}
}

func TestRunOrchestrator_PythonDependenciesPassedToUV(t *testing.T) {
	mockExec := newMockExecutor(recordLine(t, types.Succeeded(nil, nil)), 0)
	orch, _ := NewRunOrchestrator(&RunConfig{
		Snippet: types.Snippet{
			Language: types.LanguagePython,
			Body:     "import requests\nimport json\ndef handler(i):\n    return 1\n",
		},
		Commands:        testCommands(),
		ExecutorFactory: mockExec.factory(),
	})
	result, err := orch.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Dependencies) != 1 || result.Dependencies[0] != "requests" {
		t.Errorf("dependencies = %v, want [requests]", result.Dependencies)
	}
	args := strings.Join(mockExec.Config().Args, " ")
	if !strings.Contains(args, "--with requests") {
		t.Errorf("uv args missing dependency: %s", args)
	}
}

func TestNewRunOrchestrator_Validation(t *testing.T) {
	if _, err := NewRunOrchestrator(&RunConfig{Snippet: jsSnippet("   ")}); err == nil {
		t.Error("expected error for empty snippet")
	}
	if _, err := NewRunOrchestrator(&RunConfig{Snippet: jsSnippet("x"), Input: json.RawMessage("{")}); err == nil {
		t.Error("expected error for invalid input")
	}
	orch, err := NewRunOrchestrator(&RunConfig{Snippet: jsSnippet("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if orch.config.ExecutionID == "" {
		t.Error("execution id should be generated")
	}
}
