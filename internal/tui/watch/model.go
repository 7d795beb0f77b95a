package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/intake/internal/events"
)

const (
	maxEventLog  = 50
	pollInterval = 2 * time.Second
	retryDelay   = 3 * time.Second
)

// Model is the bubbletea model of the dashboard.
type Model struct {
	client Client
	now    func() time.Time

	width  int
	height int

	health   HealthState
	monitors map[string]*MonitorState
	eventLog []events.Event
	activity Activity

	table   table.Model
	spinner spinner.Model
	theme   Theme

	hubEvents chan events.Event
	lastError string
}

// New creates the dashboard for the API at apiURL.
func New(apiURL, apiKey string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		client:    Client{BaseURL: apiURL, APIKey: apiKey},
		now:       time.Now,
		monitors:  make(map[string]*MonitorState),
		hubEvents: make(chan events.Event, 100),
		table:     newMonitorTable(),
		spinner:   sp,
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribe(m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.client.fetchHealth,
		m.client.fetchMonitors,
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		m.activity.Decay(m.now())
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.OnEvent(m.now())
		applyEvent(m.monitors, e)
		m.table.SetRows(monitorRows(m.monitors, m.theme))
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Monitors = msg.Monitors
		m.health.Tracked = msg.Tracked
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.client.fetchHealth() })

	case monitorsMsg:
		applyStatuses(m.monitors, msg)
		m.table.SetRows(monitorRows(m.monitors, m.theme))
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		return m, m.client.fetchMonitors

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		return m, tea.Tick(retryDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.client.subscribe(m.hubEvents)

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(retryDelay, func(time.Time) tea.Msg { return m.client.fetchHealth() })
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to intake..."
	}

	header := renderHeader(m.health, m.activity, m.spinner.View(), m.theme, m.width, m.now())
	monitors := m.theme.Panel.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("MONITORS"),
		m.table.View(),
	))
	parts := []string{header, monitors, renderEventStream(m.eventLog, m.theme, m.width)}
	if m.lastError != "" {
		parts = append(parts, m.theme.Fail.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Select monitor"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
