// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"accelfft/internal/analysis"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	alertStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E04848")).
			Bold(true)
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	SpectrumScreen ScreenType = iota
	HistoryScreen
)

// MaxHistory is the number of frames the history screen keeps.
const MaxHistory = 100

const barWidth = 40

var (
	quitKeys   = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	switchKeys = key.NewBinding(key.WithKeys("tab"))
	upKeys     = key.NewBinding(key.WithKeys("up", "k"))
	downKeys   = key.NewBinding(key.WithKeys("down", "j"))
)

type reportMsg struct {
	report analysis.Report
}

type errMsg struct {
	err error
}

// MonitorModel is the Bubble Tea model of the live spectrum monitor.
type MonitorModel struct {
	latest        analysis.Report
	history       []analysis.Report // newest first
	frames        int
	shocks        int
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
}

// NewMonitorModel creates an empty monitor.
func NewMonitorModel() MonitorModel {
	return MonitorModel{activeScreen: SpectrumScreen}
}

// Init initializes the Bubble Tea model
func (m MonitorModel) Init() tea.Cmd {
	return nil
}

// Frames returns the number of reports received.
func (m MonitorModel) Frames() int { return m.frames }

// Latest returns the last report received.
func (m MonitorModel) Latest() analysis.Report { return m.latest }

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case reportMsg:
		m.latest = msg.report
		m.frames++
		if msg.report.Shock {
			m.shocks++
		}
		m.history = append([]analysis.Report{msg.report}, m.history...)
		if len(m.history) > MaxHistory {
			m.history = m.history[:MaxHistory]
		}
		if m.selectedIndex > 0 && m.selectedIndex < len(m.history)-1 {
			// Keep the selection on the same frame.
			m.selectedIndex++
		}
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
		switch {
		case key.Matches(msg, switchKeys):
			if m.activeScreen == SpectrumScreen {
				m.activeScreen = HistoryScreen
			} else {
				m.activeScreen = SpectrumScreen
			}
			m.refresh()

		case m.activeScreen == HistoryScreen && key.Matches(msg, upKeys):
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.refresh()
			}

		case m.activeScreen == HistoryScreen && key.Matches(msg, downKeys):
			if m.selectedIndex < len(m.history)-1 {
				m.selectedIndex++
				m.refresh()
			}
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *MonitorModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == SpectrumScreen {
		m.viewport.SetContent(m.renderSpectrum())
	} else {
		m.viewport.SetContent(m.renderHistory())
	}
}

// View renders the UI
func (m MonitorModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string
	if m.activeScreen == SpectrumScreen {
		title = titleStyle.Render(fmt.Sprintf("Spectrum • frame %d", m.latest.Frame))
		help = infoStyle.Render("Tab: History • q: Quit")
	} else {
		title = titleStyle.Render(fmt.Sprintf("History • %d frames, %d shocks", m.frames, m.shocks))
		help = infoStyle.Render("↑/↓: Navigate • Tab: Spectrum • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderSpectrum formats the latest report.
func (m MonitorModel) renderSpectrum() string {
	if m.frames == 0 {
		return "Waiting for the first frame..."
	}
	r := m.latest

	var sb strings.Builder
	sb.WriteString(highlightStyle.Render(fmt.Sprintf("Peak Frequency Bin: %d (%.2f Hz)", r.Bin, r.FrequencyHz)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Peak Power: %.2f  Magnitude: %.2f  Energy: %.2f\n", r.Power, r.Magnitude, r.Energy))
	if r.Shock {
		sb.WriteString(alertStyle.Render("SHOCK"))
		sb.WriteString("\n")
	}

	if len(r.Peaks) > 0 {
		sb.WriteString("\nPeaks:\n")
		top := float64(r.Peaks[0].Power)
		for _, p := range r.Peaks {
			sb.WriteString(fmt.Sprintf("  %4d %8.2f Hz %s\n", p.Bin, p.FrequencyHz, bar(float64(p.Power), top)))
		}
	}

	if len(r.Bands) > 0 {
		sb.WriteString("\nBands:\n")
		var top float64
		for _, b := range r.Bands {
			top = max(top, b.Level)
		}
		for _, b := range r.Bands {
			sb.WriteString(fmt.Sprintf("  %-8s %s %.2f\n", b.Name, bar(b.Level, top), b.Level))
		}
	}
	return sb.String()
}

// renderHistory formats the recent frames, newest first.
func (m MonitorModel) renderHistory() string {
	if len(m.history) == 0 {
		return "No frames yet."
	}
	var sb strings.Builder
	for i, r := range m.history {
		line := fmt.Sprintf("[%d] bin %d (%.2f Hz) power %.2f", r.Frame, r.Bin, r.FrequencyHz, r.Power)
		if r.Shock {
			line += " shock"
		}
		if i == m.selectedIndex {
			line = highlightStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func bar(v, top float64) string {
	if top <= 0 || v <= 0 {
		return ""
	}
	n := int(v / top * barWidth)
	return strings.Repeat("█", max(n, 1))
}

// Monitor runs a MonitorModel program and feeds it consumer reports. It
// implements transport.Transport.
type Monitor struct {
	program *tea.Program
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	final  MonitorModel
	err    error
}

// StartMonitor launches the monitor. The default options take over the
// terminal with the alternate screen.
func StartMonitor(opts ...tea.ProgramOption) *Monitor {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	m := &Monitor{
		program: tea.NewProgram(NewMonitorModel(), opts...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(m.done)
		model, err := m.program.Run()
		m.mu.Lock()
		defer m.mu.Unlock()
		m.err = err
		if mm, ok := model.(MonitorModel); ok {
			m.final = mm
		}
	}()
	return m
}

// Done is closed when the program exits, including when the user quits.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Send forwards reports to the program and ignores anything else.
func (m *Monitor) Send(data any) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return errors.New("monitor is closed")
	}

	switch v := data.(type) {
	case analysis.Report:
		m.program.Send(reportMsg{v})
	case *analysis.Report:
		m.program.Send(reportMsg{*v})
	case error:
		m.program.Send(errMsg{v})
	}
	return nil
}

// Close quits the program and waits for it to restore the terminal.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.program.Quit()
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	if errors.Is(m.err, tea.ErrProgramKilled) {
		return nil
	}
	return m.err
}

// Model returns the model the program ended with. It is only meaningful
// after Done is closed.
func (m *Monitor) Model() MonitorModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.final
}
