package runtime

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// TestMain doubles as a fake driver process when helperEnv is set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode))
	}
	os.Exit(m.Run())
}

const helperEnv = "SCRIPTRUN_TEST_HELPER"

func runHelper(mode string) int {
	switch mode {
	case "echo-input":
		fmt.Fprintln(os.Stderr, "diagnostic")
		fmt.Printf(`{"logs":[],"result":%q,"error":null}`+"\n", os.Getenv("INPUT_JSON"))
		return 0
	case "exit-3":
		return 3
	case "sleep":
		time.Sleep(time.Minute)
		return 0
	}
	return 99
}

func helperConfig(mode string) *ExecutorConfig {
	return &ExecutorConfig{
		Command: os.Args[0],
		Args:    []string{"-test.run=^$"},
		Env:     []string{helperEnv + "=" + mode},
	}
}

func TestExecutorManager_CapturesOutput(t *testing.T) {
	cfg := helperConfig("echo-input")
	cfg.Env = append(cfg.Env, "INPUT_JSON=inherited", "INPUT_JSON={\"a\":1}")
	m := NewExecutorManager(cfg)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := m.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(string(res.StdoutBytes), `"result":"{\"a\":1}"`) {
		t.Errorf("stdout = %s", res.StdoutBytes)
	}
	if !strings.Contains(string(res.StderrBytes), "diagnostic") {
		t.Errorf("stderr = %s", res.StderrBytes)
	}
}

func TestExecutorManager_ExitCode(t *testing.T) {
	m := NewExecutorManager(helperConfig("exit-3"))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := m.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestExecutorManager_ContextKills(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	m := NewExecutorManager(helperConfig("sleep"))
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	start := time.Now()
	res, err := m.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.ExitCode == 0 {
		t.Error("killed process should not report exit code 0")
	}
	if time.Since(start) > 10*time.Second {
		t.Error("Wait did not return promptly after cancellation")
	}
}

func TestExecutorManager_StartErrors(t *testing.T) {
	if err := NewExecutorManager(&ExecutorConfig{}).Start(context.Background()); err == nil {
		t.Error("expected error for empty command")
	}
	m := NewExecutorManager(&ExecutorConfig{Command: "/nonexistent/scriptrun-driver"})
	if err := m.Start(context.Background()); err == nil {
		t.Error("expected error for missing binary")
	}
	if _, err := NewExecutorManager(&ExecutorConfig{Command: "x"}).Wait(); err == nil {
		t.Error("expected error waiting on unstarted executor")
	}
}

func TestDeduplicateEnv(t *testing.T) {
	got := deduplicateEnv([]string{"A=1", "B=2", "A=3", "C=4"})
	want := []string{"B=2", "A=3", "C=4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("deduplicateEnv = %v, want %v", got, want)
	}
}
