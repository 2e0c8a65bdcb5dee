package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ZacxDev/flowgraph/pipeline"
)

type model struct {
	viewport      viewport.Model
	specs         map[string]*pipeline.JobSpec
	status        pipeline.StatusManager
	done          bool
	selectedIdx   int
	logView       viewport.Model
	showingLogs   bool
	logAutoscroll bool
}

func initialModel(specs map[string]*pipeline.JobSpec, status pipeline.StatusManager) *model {
	return &model{
		viewport:      viewport.New(160, 40),
		specs:         specs,
		status:        status,
		selectedIdx:   0,
		logView:       viewport.New(160, 20),
		logAutoscroll: true,
	}
}

func (m *model) Init() tea.Cmd {
	return tickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		case "up", "k":
			if !m.showingLogs {
				m.selectedIdx = (m.selectedIdx - 1 + len(m.specs)) % len(m.specs)
			} else {
				m.logAutoscroll = false
				m.logView, cmd = m.logView.Update(msg)
				cmds = append(cmds, cmd)
			}
		case "down", "j":
			if !m.showingLogs {
				m.selectedIdx = (m.selectedIdx + 1) % len(m.specs)
			} else {
				m.logView, cmd = m.logView.Update(msg)
				cmds = append(cmds, cmd)
			}
		case "enter", " ":
			m.showingLogs = !m.showingLogs
			if m.showingLogs {
				m.logAutoscroll = true
				m.updateLogView()
			}
		case "esc":
			m.showingLogs = false
		}
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 1
		m.logView.Width = msg.Width
		m.logView.Height = msg.Height / 2
		return m, nil
	case tickMsg:
		if !m.done {
			cmds = append(cmds, tickCmd())
		}
	}

	if !m.showingLogs {
		m.viewport.SetContent(m.statusView())
	} else if m.logAutoscroll {
		m.updateLogView()
	}
	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	if m.done {
		return "Exiting...\n"
	}
	var sb strings.Builder
	sb.WriteString(m.viewport.View())
	if m.showingLogs {
		sb.WriteString("\n\nOutput:\n")
		sb.WriteString(m.logView.View())
	}
	sb.WriteString("\n\033[1mPress q to quit, enter/space to toggle logs, up/down or j/k to navigate\033[0m")
	return sb.String()
}

func (m *model) jobNames() []string {
	names := make([]string, 0, len(m.specs))
	for name := range m.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *model) statusView() string {
	snapshot := m.status.Snapshot()

	var sb strings.Builder
	sb.WriteString("Flowgraph Pipeline Status\n\n")

	for i, name := range m.jobNames() {
		status, ok := snapshot[name]
		if !ok {
			status = pipeline.JobStatus{Status: pipeline.StatusQueued}
		}

		var duration time.Duration
		if !status.EndTime.IsZero() {
			duration = status.EndTime.Sub(status.StartTime)
		} else if !status.StartTime.IsZero() {
			duration = time.Since(status.StartTime)
		}

		statusColor := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
		switch status.Status {
		case pipeline.StatusCompleted, pipeline.StatusCached:
			statusColor = statusColor.Foreground(lipgloss.Color("82"))
		case pipeline.StatusFailed:
			statusColor = statusColor.Foreground(lipgloss.Color("160"))
		case pipeline.StatusSkipped:
			statusColor = statusColor.Foreground(lipgloss.Color("243"))
		}

		prefix := "  "
		if i == m.selectedIdx {
			prefix = "> "
		}

		sb.WriteString(fmt.Sprintf(
			"%s%-20s | %-18s | %-10s\n",
			prefix,
			name,
			statusColor.Render(status.Status),
			duration.Round(time.Millisecond),
		))
	}

	return sb.String()
}

func (m *model) updateLogView() {
	names := m.jobNames()
	if m.selectedIdx >= len(names) {
		return
	}

	status, ok := m.status.Snapshot()[names[m.selectedIdx]]
	if !ok || len(status.LogLines) == 0 {
		m.logView.SetContent("This job has not yet produced output")
		return
	}

	m.logView.SetContent(strings.Join(status.LogLines, "\n"))
	if m.logAutoscroll {
		m.logView.GotoBottom()
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
