package indicator

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// FrameInterval is how often the terminal view refreshes.
const FrameInterval = 50 * time.Millisecond

// Pulser queues manual presence pulses. *pipeline.Queue satisfies it.
type Pulser interface {
	PushPulse(now time.Time, origin string)
}

// FrameMsg triggers a redraw from the monitor.
type FrameMsg time.Time

var (
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(ColorHigh)
	styleSection = lipgloss.NewStyle().Bold(true).MarginTop(1)
	styleHelp    = lipgloss.NewStyle().Foreground(ColorDim).MarginTop(1)
)

// Model is the bubbletea model of the live terminal monitor.
type Model struct {
	width  int
	height int

	monitor *Monitor
	pulser  Pulser
	now     func() time.Time

	view   View
	pulses int
}

// NewModel creates a Model drawing from monitor. pulser may be nil.
func NewModel(monitor *Monitor, pulser Pulser) Model {
	return Model{monitor: monitor, pulser: pulser, now: time.Now}
}

func frameCmd() tea.Cmd {
	return tea.Tick(FrameInterval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return frameCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case FrameMsg:
		m.view = m.monitor.Snapshot()
		return m, frameCmd()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "space", "p", "P":
		if m.pulser != nil {
			m.pulser.PushPulse(m.now(), "tui")
			m.pulses++
		}
	}
	return m, nil
}

func (m Model) View() string {
	header := styleHeader.Render("PRESENCE METER")
	counts := styleDim.Render(fmt.Sprintf("triggers %d  suppressed %d  lockouts %d  pulses %d",
		m.view.Counts.Triggers, m.view.Counts.Suppressed, m.view.Counts.Lockouts, m.view.Counts.ManualPulses))

	help := "q quit"
	if m.pulser != nil {
		help = fmt.Sprintf("space pulse (%d sent)  ", m.pulses) + help
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header+"  "+counts,
		RenderBatteries(m.view.Levels, m.view.Blink),
		styleSection.Render("Sensors"),
		RenderSensors(m.view.Sensors),
		styleSection.Render("Recent triggers"),
		RenderTriggers(m.view.Triggers),
		styleHelp.Render(help),
	)
}
