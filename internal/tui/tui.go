// Package tui is the interactive dashboard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskboard/internal/dashboard"
	"taskboard/internal/service"
)

type mode int

const (
	modeList mode = iota
	modeAdd
)

const (
	helpLine      = "space/x toggle · d delete · a add · tab/1/2/3 filter · r refresh · q quit"
	defaultStatus = "Press 'a' to add, space to toggle, 'd' to delete."
)

// doneMsg reports a finished controller call.
type doneMsg struct {
	status string
	err    error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	tabStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Padding(0, 1)
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	doneStyle     = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("#888888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	emptyStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	listBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

// Model is the bubbletea model over a dashboard controller.
type Model struct {
	ctx    context.Context
	ctrl   *dashboard.Controller
	snap   dashboard.Snapshot
	cursor int
	mode   mode
	input  textinput.Model
	status string
	width  int
}

// New creates a model. Init mounts the controller.
func New(ctx context.Context, ctrl *dashboard.Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "Task title"
	ti.CharLimit = service.MaxTitleLength
	ti.Width = 40

	return Model{
		ctx:    ctx,
		ctrl:   ctrl,
		snap:   ctrl.Snapshot(),
		input:  ti,
		status: defaultStatus,
	}
}

// Run starts the interactive dashboard and blocks until the user quits.
func Run(ctx context.Context, ctrl *dashboard.Controller, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(New(ctx, ctrl), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.call("", m.ctrl.Mount)
}

// call runs fn off the update loop and reports back with a doneMsg.
func (m Model) call(status string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{status: status, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.snap = m.ctrl.Snapshot()
		m.cursor = clampCursor(m.cursor, len(m.snap.Tasks))
		switch {
		case msg.err == nil:
			if msg.status != "" {
				m.status = msg.status
			}
		case errors.Is(msg.err, dashboard.ErrUnknownTask):
			m.status = "Task is no longer in the list"
		case m.snap.Err == "":
			m.status = msg.err.Error()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-10)
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeAdd {
			return m.updateAdd(msg)
		}
		return m.updateList(msg.String())
	}

	if m.mode == modeAdd {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = modeList
		m.input.SetValue("")
		m.input.Blur()
		m.status = "Cancelled"
		return m, nil
	case "enter":
		title := m.input.Value()
		m.mode = modeList
		m.input.SetValue("")
		m.input.Blur()
		m.cursor = 0
		return m, m.call("Added task", func(ctx context.Context) error {
			_, err := m.ctrl.Create(ctx, title, "")
			return err
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateList(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	}
	if m.snap.State == dashboard.StateUnauthenticated || m.snap.State == dashboard.StateLoadingSession {
		return m, nil
	}

	switch key {
	case "up", "k":
		m.cursor = clampCursor(m.cursor-1, len(m.snap.Tasks))
	case "down", "j":
		m.cursor = clampCursor(m.cursor+1, len(m.snap.Tasks))
	case " ", "x":
		task, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.call("Toggled task", func(ctx context.Context) error {
			_, err := m.ctrl.Toggle(ctx, task.ID)
			return err
		})
	case "d":
		task, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, m.call("Deleted task", func(ctx context.Context) error {
			return m.ctrl.Delete(ctx, task.ID)
		})
	case "a":
		m.mode = modeAdd
		m.status = "Type a title and press Enter (Esc cancels)"
		focus := m.input.Focus()
		return m, tea.Batch(focus, textinput.Blink)
	case "tab":
		return m.setFilter(m.snap.Filter.Next())
	case "1":
		return m.setFilter(service.FilterAll)
	case "2":
		return m.setFilter(service.FilterPending)
	case "3":
		return m.setFilter(service.FilterCompleted)
	case "r":
		return m, m.call("Refreshed", m.ctrl.Refresh)
	}
	return m, nil
}

func (m Model) setFilter(f service.Filter) (tea.Model, tea.Cmd) {
	m.cursor = 0
	return m, m.call("", func(ctx context.Context) error {
		return m.ctrl.SetFilter(ctx, f)
	})
}

func (m Model) selected() (service.Task, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Tasks) {
		return service.Task{}, false
	}
	return m.snap.Tasks[m.cursor], true
}

func (m Model) View() string {
	switch m.snap.State {
	case dashboard.StateLoadingSession:
		return "Loading session...\n"
	case dashboard.StateUnauthenticated:
		return "Please log in to view your tasks (run: taskboard login)\n" + hintStyle.Render("q quit") + "\n"
	}

	var b strings.Builder
	header := "taskboard"
	if s := m.snap.Session; s != nil {
		who := s.User.Name
		if who == "" {
			who = s.User.Email
		}
		header += " · " + who
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(listBoxStyle.Render(m.renderTasks()))
	b.WriteString("\n")

	if m.snap.Err != "" {
		b.WriteString(errorStyle.Render(m.snap.Err))
		b.WriteString("\n")
	}
	if m.mode == modeAdd {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(hintStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(helpLine))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := make([]string, 0, len(service.Filters))
	for i, f := range service.Filters {
		label := fmt.Sprintf("%d %s", i+1, f)
		if f == m.snap.Filter {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderTasks() string {
	if m.snap.State == dashboard.StateLoadingTasks && len(m.snap.Tasks) == 0 {
		return emptyStyle.Render("Loading tasks...")
	}
	if len(m.snap.Tasks) == 0 {
		return emptyStyle.Render("No tasks found")
	}

	lines := make([]string, len(m.snap.Tasks))
	for i, t := range m.snap.Tasks {
		mark, title := "[ ]", t.Title
		if t.Completed {
			mark, title = "[x]", doneStyle.Render(t.Title)
		}
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		lines[i] = fmt.Sprintf("%s%s %s", prefix, mark, title)
	}
	return strings.Join(lines, "\n")
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
