package watch

import (
	"strings"
	"time"
)

// Activity lights up on every event and fades while the stream is quiet.
type Activity struct {
	dots      int
	lastEvent time.Time
}

const activityDots = 5

func (a *Activity) OnEvent(now time.Time) {
	a.dots = activityDots
	a.lastEvent = now
}

// Decay drops one dot per two quiet seconds.
func (a *Activity) Decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	left := activityDots - int(now.Sub(a.lastEvent)/(2*time.Second))
	a.dots = max(0, min(a.dots, left))
}

func (a Activity) Dots() int { return a.dots }

func (a Activity) LastEvent() time.Time { return a.lastEvent }

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.dots {
			b.WriteString(theme.DotOn.Render("●"))
		} else {
			b.WriteString(theme.DotOff.Render("○"))
		}
	}
	return b.String()
}
