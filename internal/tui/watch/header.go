package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState is the last /healthz answer.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	Monitors      int
	Tracked       int
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, activity Activity, spin string, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	status := theme.OK.Render("HEALTHY")
	if !health.Connected {
		status = theme.Fail.Render("CONNECTING ") + spin
	} else if health.Status != "ok" && health.Status != "" {
		status = theme.Fail.Render("DEGRADED")
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}

	title := " INTAKE WATCH"
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(1, innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  up %s  monitors: %d  tracked: %d",
		status,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.Monitors,
		health.Tracked,
	)
	activityLine := fmt.Sprintf(" last event: %s %s", lastEvent, activity.Render(theme))

	return theme.Panel.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, activityLine),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
