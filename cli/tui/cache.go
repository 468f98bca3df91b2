package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/scriptrun/cli/report"
)

// CacheModel lists cached snippets with a cursor and a detail pane.
type CacheModel struct {
	entries  []report.CacheEntry
	cursor   int
	quitting bool
}

// NewCacheModel creates a new cache model.
func NewCacheModel(data any) CacheModel {
	entries, _ := data.([]report.CacheEntry)
	return CacheModel{entries: entries}
}

// Init implements tea.Model.
func (m CacheModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m CacheModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m CacheModel) View() string {
	if m.quitting {
		return ""
	}

	var list strings.Builder
	list.WriteString(TitleStyle.Render(fmt.Sprintf("Snippet Cache (%d)", len(m.entries))))
	list.WriteString("\n")
	if len(m.entries) == 0 {
		list.WriteString(ValueStyle.Render("(empty)"))
	}
	for i, e := range m.entries {
		line := fmt.Sprintf("%-12s %-10s %4d hits", e.Hash, e.Language, e.Hits)
		if i == m.cursor {
			list.WriteString(SelectedStyle.Render("> " + line))
		} else {
			list.WriteString("  " + ValueStyle.Render(line))
		}
		list.WriteString("\n")
	}

	panes := []string{BoxStyle.Render(list.String())}
	if len(m.entries) > 0 {
		panes = append(panes, BoxStyle.Render(m.renderDetail(m.entries[m.cursor])))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panes...) + "\n" + helpLine(keys.Up, keys.Down, keys.Quit)
}

func (m CacheModel) renderDetail(e report.CacheEntry) string {
	var b strings.Builder
	rows := [][2]string{
		{"Hash", e.Hash},
		{"Language", e.Language},
		{"Size", fmt.Sprintf("%d bytes", e.Size)},
		{"Hits", fmt.Sprintf("%d", e.Hits)},
		{"Created", e.Created},
		{"Last Used", e.LastUsed},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1]))
	}
	return b.String()
}
