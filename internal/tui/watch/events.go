package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/intake/internal/events"
)

const shownEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4
	if len(eventLog) == 0 {
		return theme.Panel.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		))
	}

	lines := make([]string, 0, shownEvents)
	for i, e := range eventLog {
		if i >= shownEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}
	return theme.Panel.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	))
}

func formatEvent(e events.Event, theme Theme) string {
	style := theme.Dim
	switch e.Type {
	case events.TypeOutcome:
		if strings.Contains(string(e.Data), `"kind":"error"`) {
			style = theme.Fail
		} else {
			style = theme.OK
		}
	case events.TypeItemPromoted, events.TypeJobStarted:
		style = theme.Warn
	case events.TypeSweep:
		style = theme.Accent
	}
	return fmt.Sprintf("%s %s %s",
		theme.Dim.Render(e.At.Format("15:04:05")),
		style.Render(fmt.Sprintf("%-16s", e.Type)),
		describe(e),
	)
}

// describe picks the interesting fields of an event payload.
func describe(e events.Event) string {
	data := map[string]any{}
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	for _, key := range []string{"monitor", "sweep", "job", "item", "kind"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if n, ok := data["files_deleted"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d deleted", int(n)))
	}
	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
