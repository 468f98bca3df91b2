package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/scriptrun/cli/report"
)

// ExecutionModel shows one execution with its log lines. Long logs scroll.
type ExecutionModel struct {
	data     *report.Execution
	offset   int
	height   int
	quitting bool
}

// NewExecutionModel creates a new execution model.
func NewExecutionModel(data any) ExecutionModel {
	e, _ := data.(*report.Execution)
	return ExecutionModel{data: e, height: 24}
}

// Init implements tea.Model.
func (m ExecutionModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ExecutionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.offset > 0 {
				m.offset--
			}
		case key.Matches(msg, keys.Down):
			if m.data != nil && m.offset < len(m.data.Logs)-1 {
				m.offset++
			}
		}
	}

	return m, nil
}

// logWindow is the number of log lines shown for the current height.
func (m ExecutionModel) logWindow() int {
	return max(m.height-18, 3)
}

// View implements tea.Model.
func (m ExecutionModel) View() string {
	if m.quitting {
		return ""
	}
	if m.data == nil {
		return "Invalid data type for execution view"
	}
	d := m.data

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Execution " + d.ExecutionID))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"Language", d.Language},
		{"Driver", d.Driver},
		{"Exit Code", fmt.Sprintf("%d", d.ExitCode)},
		{"Duration", d.Duration},
		{"Cache Hit", fmt.Sprintf("%t", d.CacheHit)},
	}
	if len(d.Dependencies) > 0 {
		rows = append(rows, [2]string{"Dependencies", strings.Join(d.Dependencies, ", ")})
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Outcome:"), OutcomeStyle(d.Outcome).Render(d.Outcome))
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1]))
	}

	switch {
	case d.Error != nil:
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Error:"), ErrorStyle.Render(*d.Error))
	case d.Result != nil:
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Result:"), SuccessStyle.Render(*d.Result))
	default:
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Result:"), ValueStyle.Render("(none)"))
	}

	fmt.Fprintf(&b, "\n%s\n", LabelStyle.Render(fmt.Sprintf("Logs (%d):", len(d.Logs))))
	end := min(m.offset+m.logWindow(), len(d.Logs))
	for _, line := range d.Logs[min(m.offset, end):end] {
		b.WriteString(LogStyle.Render(line))
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String()) + "\n" + helpLine(keys.Up, keys.Down, keys.Quit)
}
