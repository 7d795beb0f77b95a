package watch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/intake/internal/events"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
)

// MonitorState combines the polled status with outcome tallies seen on the
// event stream since the dashboard started.
type MonitorState struct {
	Status   monitor.Status
	Archived int
	Deleted  int
	Errors   int
}

func newMonitorTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Monitor", Width: 20},
			{Title: "Tracked", Width: 8},
			{Title: "Archived", Width: 9},
			{Title: "Errors", Width: 7},
			{Title: "Last cycle", Width: 28},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

// applyStatuses merges a /monitors poll into states.
func applyStatuses(states map[string]*MonitorState, statuses []monitor.Status) {
	for _, st := range statuses {
		s, ok := states[st.Name]
		if !ok {
			s = &MonitorState{}
			states[st.Name] = s
		}
		s.Status = st
	}
}

// applyEvent updates states from one stream event.
func applyEvent(states map[string]*MonitorState, e events.Event) {
	switch e.Type {
	case events.TypeOutcome:
		var rec outcome.Record
		if json.Unmarshal(e.Data, &rec) != nil || rec.Monitor == "" {
			return
		}
		s := stateFor(states, rec.Monitor)
		switch rec.Kind {
		case outcome.KindArchived:
			s.Archived++
		case outcome.KindDeleted:
			s.Deleted++
		case outcome.KindError:
			s.Errors++
		}
	case events.TypeCycle:
		var c struct {
			Monitor string `json:"monitor"`
			Tracked int    `json:"tracked"`
			monitor.CycleStats
		}
		if json.Unmarshal(e.Data, &c) != nil || c.Monitor == "" {
			return
		}
		s := stateFor(states, c.Monitor)
		s.Status.Tracked = c.Tracked
		s.Status.LastCycle = c.CycleStats
	}
}

func stateFor(states map[string]*MonitorState, name string) *MonitorState {
	s, ok := states[name]
	if !ok {
		s = &MonitorState{Status: monitor.Status{Name: name}}
		states[name] = s
	}
	return s
}

func monitorRows(states map[string]*MonitorState, theme Theme) []table.Row {
	names := make([]string, 0, len(states))
	for n := range states {
		names = append(names, n)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, n := range names {
		s := states[n]
		c := s.Status.LastCycle
		st := theme.Idle.Render("·")
		switch {
		case c.Aborted:
			st = theme.Fail.Render("✗")
		case c.Failed > 0:
			st = theme.Warn.Render("!")
		case !c.Started.IsZero():
			st = theme.OK.Render("✓")
		}
		last := "-"
		if !c.Started.IsZero() {
			last = fmt.Sprintf("+%d ran %d fail %d %s", c.Promoted, c.Processed, c.Failed, c.Duration.Round(1e6))
		}
		rows = append(rows, table.Row{
			st,
			n,
			fmt.Sprintf("%d", s.Status.Tracked),
			fmt.Sprintf("%d", s.Archived+s.Deleted),
			fmt.Sprintf("%d", s.Errors),
			last,
		})
	}
	return rows
}
