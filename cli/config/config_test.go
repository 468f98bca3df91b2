package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/scriptrun/runtime"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `timeout: 45s
cache_dir: /var/cache/scriptrun
show_logs: true
log_level: debug
concurrency: 4

runtimes:
  deno:
    command: /usr/local/bin/deno
    args: [run, --allow-net, --no-check]
  python:
    command: /usr/local/bin/uv
    version: "3.12"
  javascript_driver: builtin

worker:
  command: scriptrun
  args: [serve]
  id: worker-a
  request_timeout: 2m

adapter:
  type: webhook
  url: https://hooks.example.com/scriptrun
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Timeout.Duration != 45*time.Second {
		t.Errorf("expected timeout=45s, got %v", cfg.Timeout.Duration)
	}
	assertEqual(t, "cache_dir", cfg.CacheDir, "/var/cache/scriptrun")
	assertEqual(t, "log_level", cfg.LogLevel, "debug")
	if !cfg.ShowLogs {
		t.Error("expected show_logs=true")
	}
	if cfg.Concurrency != 4 {
		t.Errorf("expected concurrency=4, got %d", cfg.Concurrency)
	}

	// Runtimes
	assertEqual(t, "runtimes.deno.command", cfg.Runtimes.Deno.Command, "/usr/local/bin/deno")
	assertEqual(t, "runtimes.deno.args", strings.Join(cfg.Runtimes.Deno.Args, " "), "run --allow-net --no-check")
	assertEqual(t, "runtimes.python.command", cfg.Runtimes.Python.Command, "/usr/local/bin/uv")
	assertEqual(t, "runtimes.python.version", cfg.Runtimes.Python.Version, "3.12")
	assertEqual(t, "runtimes.javascript_driver", cfg.Runtimes.JavaScriptDriver, "builtin")

	// Worker
	assertEqual(t, "worker.command", cfg.Worker.Command, "scriptrun")
	assertEqual(t, "worker.id", cfg.Worker.ID, "worker-a")
	if cfg.Worker.RequestTimeout.Duration != 2*time.Minute {
		t.Errorf("expected worker.request_timeout=2m, got %v", cfg.Worker.RequestTimeout.Duration)
	}

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/scriptrun")
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Timeout.Duration != 0 || cfg.Adapter.Type != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/scriptrun.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "{{invalid yaml")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeTemp(t, "timeout: forever\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected invalid duration error, got %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CACHE_DIR", "/tmp/expanded")

	path := writeTemp(t, `cache_dir: ${TEST_CACHE_DIR}
timeout: ${TEST_TIMEOUT_UNSET:-30s}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "cache_dir", cfg.CacheDir, "/tmp/expanded")
	if cfg.Timeout.Duration != 30*time.Second {
		t.Errorf("expected timeout=30s from default, got %v", cfg.Timeout.Duration)
	}
}

func TestLoad_RedisAdapterChannelOmitted(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "")
}

func TestLoad_RedisListMode(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: executions
  mode: list
  max_len: 50
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.mode", cfg.Adapter.Mode, "list")
	if cfg.Adapter.MaxLen != 50 {
		t.Errorf("expected adapter.max_len=50, got %d", cfg.Adapter.MaxLen)
	}
}

func TestValidate(t *testing.T) {
	negative := -1
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero value", Config{}, ""},
		{"negative concurrency", Config{Concurrency: -2}, "concurrency"},
		{"negative timeout", Config{Timeout: Duration{-time.Second}}, "timeout"},
		{"bad log level", Config{LogLevel: "loud"}, "log_level"},
		{"bad javascript driver", Config{Runtimes: RuntimesConfig{JavaScriptDriver: "node"}}, "javascript_driver"},
		{"unknown adapter", Config{Adapter: AdapterConfig{Type: "kafka", URL: "x"}}, "adapter.type"},
		{"adapter without url", Config{Adapter: AdapterConfig{Type: "webhook"}}, "adapter.url"},
		{"negative retries", Config{Adapter: AdapterConfig{Type: "webhook", URL: "http://x", Retries: &negative}}, "retries"},
		{"bad redis mode", Config{Adapter: AdapterConfig{Type: "redis", URL: "redis://x", Mode: "stream"}}, "adapter.mode"},
		{"valid redis", Config{Adapter: AdapterConfig{Type: "redis", URL: "redis://x", Mode: "list"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	path := writeTemp(t, "adapter:\n  type: webhook\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for webhook without url")
	}
}

func TestApplyRuntimes(t *testing.T) {
	base := runtime.RuntimeCommands{
		Self:          []string{"scriptrun", "envelope"},
		Deno:          "deno",
		DenoArgs:      runtime.DefaultDenoArgs,
		UV:            "uv",
		PythonVersion: runtime.DefaultPythonVersion,
	}

	cfg := &Config{Runtimes: RuntimesConfig{
		Deno:             CommandConfig{Command: "/opt/deno"},
		Python:           PythonConfig{Version: "3.11"},
		JavaScriptDriver: runtime.JSDriverDeno,
	}}
	got := cfg.ApplyRuntimes(base)
	assertEqual(t, "javascript driver", got.JavaScriptDriver, runtime.JSDriverDeno)

	assertEqual(t, "deno", got.Deno, "/opt/deno")
	assertEqual(t, "uv", got.UV, "uv")
	assertEqual(t, "python version", got.PythonVersion, "3.11")
	if len(got.DenoArgs) != len(runtime.DefaultDenoArgs) {
		t.Errorf("deno args should be untouched when not configured, got %v", got.DenoArgs)
	}
	if got.Self[0] != "scriptrun" {
		t.Errorf("self command should be untouched, got %v", got.Self)
	}
}

func TestResolve_DefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve without file: %v", err)
	}
	if cfg.LogLevel != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}

	if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve with default file: %v", err)
	}
	assertEqual(t, "log_level", cfg.LogLevel, "warn")
}

func TestResolve_ExplicitMissing(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for an explicit path that does not exist")
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scriptrun.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
