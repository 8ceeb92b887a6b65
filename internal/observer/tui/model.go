// Package tui implements the pipectl live observer (C8): a bubbletea
// program that renders step/event progress, adapted from the teacher's
// steer TUI (src/cluster/tui.go) — same two-pane shape, same Model/
// Init/Update/View bubbletea wiring, same lipgloss styling palette, but
// the tree sidebar becomes a flat step list and the detail pane shows
// one step's streamed output instead of an agent's iteration history.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipectl/internal/engine"
	"pipectl/internal/event"
	"pipectl/internal/pattern"
)

// stepRow is one sidebar entry, rebuilt from lifecycle events as they
// arrive (mirrors the teacher's TreeNode, flattened: there is no
// iteration nesting here, only steps).
type stepRow struct {
	id       string
	status   string
	attempt  int
	err      string
	previewH [4]string
	lineIdx  int
}

func (r *stepRow) pushPreview(text string) {
	for _, part := range strings.Split(text, "\n") {
		r.previewH[r.lineIdx%4] = part
		r.lineIdx++
	}
}

func (r *stepRow) previewLines() []string {
	n := r.lineIdx
	if n > 4 {
		n = 4
	}
	out := make([]string, 0, n)
	start := r.lineIdx - n
	for i := start; i < r.lineIdx; i++ {
		out = append(out, r.previewH[i%4])
	}
	return out
}

// lifecycleMsg carries one engine.LifecycleEvent into the bubbletea loop.
type lifecycleMsg engine.LifecycleEvent

// Model is the bubbletea model driving the live view.
type Model struct {
	events <-chan engine.LifecycleEvent

	order  []string
	rows   map[string]*stepRow
	cursor int

	pipelineStatus string
	done           bool

	width, height int
}

// NewModel builds the initial TUI model, reading lifecycle events off ch
// until it is closed (by the Observer at pipeline completion).
func NewModel(ch <-chan engine.LifecycleEvent) Model {
	return Model{events: ch, rows: make(map[string]*stepRow)}
}

func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return lifecycleMsg(ev)
	}
}

func (m *Model) row(id string) *stepRow {
	r, ok := m.rows[id]
	if !ok {
		r = &stepRow{id: id, status: "pending"}
		m.rows[id] = r
		m.order = append(m.order, id)
	}
	return r
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.order)-1 {
				m.cursor++
			}
		}
		return m, nil

	case lifecycleMsg:
		m.apply(engine.LifecycleEvent(msg))
		if msg.Kind == engine.EventPipelineCompleted {
			m.done = true
			return m, nil
		}
		return m, m.waitForEvent()
	}
	return m, nil
}

func (m *Model) apply(ev engine.LifecycleEvent) {
	switch ev.Kind {
	case engine.EventPipelineStarted, engine.EventPipelineCompleted:
		m.pipelineStatus = ev.PipelineStatus.String()

	case engine.EventStepStarted:
		r := m.row(ev.StepID)
		r.status = "running"
		r.attempt = ev.Attempt

	case engine.EventStepOutput:
		r := m.row(ev.StepID)
		if delta, ok := event.TextDelta(ev.RawEvent); ok {
			r.pushPreview(delta)
		}

	case engine.EventStepCompleted:
		m.row(ev.StepID).status = "completed"

	case engine.EventStepFailed:
		r := m.row(ev.StepID)
		r.status = "failed"
		r.err = ev.Error

	case engine.EventStepContinued:
		r := m.row(ev.StepID)
		if ev.Action == pattern.ActionRetry {
			r.status = "retrying"
		}

	case engine.EventStepRerouted:
		m.row(ev.StepID).status = "routed"
	}
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	case "failed":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	case "retrying":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	}
}

func (m Model) View() string {
	var sb strings.Builder

	header := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf(" pipectl — %s", fallback(m.pipelineStatus, "starting")))
	sb.WriteString(header + "\n\n")

	leftLines := make([]string, 0, len(m.order))
	for i, id := range m.order {
		r := m.rows[id]
		label := fmt.Sprintf(" %-20s %s", id, statusStyle(r.status).Render(r.status))
		if r.attempt > 1 {
			label += fmt.Sprintf(" (attempt %d)", r.attempt)
		}
		if i == m.cursor {
			label = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Render(label)
		}
		leftLines = append(leftLines, label)
	}
	left := lipgloss.NewStyle().
		Width(34).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(strings.Join(leftLines, "\n"))

	right := lipgloss.NewStyle().
		Width(60).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(m.renderDetail())

	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	sb.WriteString("\n\n ↑↓ select   q quit\n")
	return sb.String()
}

func (m Model) renderDetail() string {
	if m.cursor < 0 || m.cursor >= len(m.order) {
		return "No step selected"
	}
	r := m.rows[m.order[m.cursor]]
	headerStyle := lipgloss.NewStyle().Bold(true).Underline(true)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(r.id) + "\n")
	sb.WriteString(fmt.Sprintf("status: %s\n", statusStyle(r.status).Render(r.status)))
	if r.err != "" {
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("error: "+r.err) + "\n")
	}
	sb.WriteString("\n")
	for _, line := range r.previewLines() {
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render(line) + "\n")
	}
	return sb.String()
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
