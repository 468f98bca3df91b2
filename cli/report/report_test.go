package report

import (
	"testing"
	"time"

	"github.com/pithecene-io/scriptrun/runtime"
	"github.com/pithecene-io/scriptrun/types"
)

func TestFromRun(t *testing.T) {
	res := &runtime.RunResult{
		ExecutionID:  "exec-1",
		Language:     types.LanguagePython,
		Driver:       runtime.DriverPython,
		Outcome:      &runtime.Outcome{Status: runtime.OutcomeSnippetError, Message: "ValueError: bad"},
		Result:       types.Failed([]string{"starting"}, "ValueError: bad"),
		ExitCode:     1,
		Duration:     1234567 * time.Microsecond,
		Dependencies: []string{"requests"},
	}

	e := FromRun(res)
	if e.Outcome != "snippet_error" || e.Message != "ValueError: bad" {
		t.Errorf("outcome = %q / %q", e.Outcome, e.Message)
	}
	if e.Duration != "1.235s" {
		t.Errorf("duration = %q, want 1.235s", e.Duration)
	}
	if e.Error == nil || *e.Error != "ValueError: bad" || e.Result != nil {
		t.Errorf("result/error = %v / %v", e.Result, e.Error)
	}

	rec := e.Record()
	if rec.OK() || len(rec.Logs) != 1 {
		t.Errorf("record = %+v", rec)
	}
}

func TestFromRun_NilLogsBecomeEmpty(t *testing.T) {
	e := FromRun(&runtime.RunResult{Outcome: &runtime.Outcome{Status: runtime.OutcomeSuccess}})
	if e.Logs == nil {
		t.Error("logs should render as an empty list, not null")
	}
}

func TestExecution_Rows(t *testing.T) {
	e := &Execution{
		ExecutionID: "exec-2",
		Outcome:     "success",
		Result:      types.StringPtr("42"),
		Logs:        []string{"one", "two"},
	}

	var logs []string
	var result string
	for _, row := range e.Rows() {
		switch row[0] {
		case "log":
			logs = append(logs, row[1])
		case "result":
			result = row[1]
		case "error":
			t.Errorf("unexpected error row %q", row[1])
		}
	}
	if result != "42" {
		t.Errorf("result row = %q", result)
	}
	if len(logs) != 2 || logs[0] != "one" || logs[1] != "two" {
		t.Errorf("log rows = %v, want emission order", logs)
	}
}

func TestCacheEntries_SortedAndShortened(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []runtime.CacheEntry{
		{Hash: "aaaaaaaaaaaaaaaaaaaa", Language: types.LanguageJavaScript, LastUsed: now.Add(-time.Hour)},
		{Hash: "bbbbbbbbbbbbbbbbbbbb", Language: types.LanguagePython, LastUsed: now},
		{Hash: "short", Language: types.LanguageTypeScript, LastUsed: now.Add(-2 * time.Hour)},
	}

	got := CacheEntries(entries)
	if len(got) != 3 {
		t.Fatalf("got %d entries", len(got))
	}
	if got[0].Hash != "bbbbbbbbbbbb" || got[0].Language != "python" {
		t.Errorf("first entry = %+v, want most recently used", got[0])
	}
	if got[2].Hash != "short" {
		t.Errorf("short hashes should be kept whole, got %q", got[2].Hash)
	}
	if entries[0].Hash != "aaaaaaaaaaaaaaaaaaaa" {
		t.Error("input slice must not be reordered")
	}
}

func TestWarmupSteps(t *testing.T) {
	steps := WarmupSteps([]runtime.WarmupStep{
		{Name: "deno", OK: true, Output: "deno 2.1.0", Duration: 40 * time.Millisecond},
		{Name: "python", OK: false, Output: "partial", Error: "uv: not found"},
	})
	if steps[0].Detail != "deno 2.1.0" || steps[1].Detail != "uv: not found" {
		t.Errorf("details = %q, %q", steps[0].Detail, steps[1].Detail)
	}
	if !WarmupFailed(steps) {
		t.Error("WarmupFailed should report the failing python step")
	}
	if WarmupFailed(steps[:1]) {
		t.Error("WarmupFailed should be false when all steps pass")
	}
}
