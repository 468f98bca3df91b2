package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/scriptrun/cli/report"
	"github.com/pithecene-io/scriptrun/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{ViewExecution, true},
		{ViewCache, true},
		{"warmup", false},
		{"version", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("warmup", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestExecutionModel_View(t *testing.T) {
	m := NewExecutionModel(&report.Execution{
		ExecutionID: "exec-9",
		Outcome:     "success",
		Result:      types.StringPtr("hello"),
		Logs:        []string{"first line", "second line"},
	})

	view := m.View()
	for _, want := range []string{"exec-9", "hello", "first line", "second line", "Logs (2)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestExecutionModel_Scroll(t *testing.T) {
	var m tea.Model = NewExecutionModel(&report.Execution{Logs: []string{"a", "b", "c"}})
	m, _ = m.Update(keyPress("j"))
	m, _ = m.Update(keyPress("j"))
	m, _ = m.Update(keyPress("j"))
	if off := m.(ExecutionModel).offset; off != 2 {
		t.Errorf("offset = %d, want clamp at 2", off)
	}
	m, _ = m.Update(keyPress("k"))
	if off := m.(ExecutionModel).offset; off != 1 {
		t.Errorf("offset = %d, want 1", off)
	}
}

func TestExecutionModel_Quit(t *testing.T) {
	var m tea.Model = NewExecutionModel(&report.Execution{})
	m, cmd := m.Update(keyPress("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestExecutionModel_WrongData(t *testing.T) {
	if view := NewExecutionModel("nope").View(); !strings.Contains(view, "Invalid data") {
		t.Errorf("view = %q", view)
	}
}

func TestCacheModel_CursorAndDetail(t *testing.T) {
	var m tea.Model = NewCacheModel([]report.CacheEntry{
		{Hash: "aaaa", Language: "javascript", Size: 10},
		{Hash: "bbbb", Language: "python", Size: 20},
	})
	m, _ = m.Update(keyPress("j"))
	m, _ = m.Update(keyPress("j"))

	cm := m.(CacheModel)
	if cm.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", cm.cursor)
	}
	if view := cm.View(); !strings.Contains(view, "20 bytes") {
		t.Errorf("detail pane should show the selected entry:\n%s", view)
	}
}

func TestCacheModel_Empty(t *testing.T) {
	view := NewCacheModel([]report.CacheEntry{}).View()
	if !strings.Contains(view, "(empty)") {
		t.Errorf("view = %q", view)
	}
}
