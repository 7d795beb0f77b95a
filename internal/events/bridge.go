package events

import (
	"context"

	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/retention"
)

// Bridge publishes monitor, outcome and sweep activity on a Hub.
type Bridge struct {
	Hub *Hub
}

var (
	_ outcome.Sink       = Bridge{}
	_ monitor.Observer   = Bridge{}
	_ retention.Observer = Bridge{}
)

func (b Bridge) Accept(_ context.Context, rec outcome.Record) error {
	b.Hub.Publish(TypeOutcome, rec)
	return nil
}

func (b Bridge) ItemPromoted(monitorName, item string) {
	b.Hub.Publish(TypeItemPromoted, map[string]string{"monitor": monitorName, "item": item})
}

func (b Bridge) CycleCompleted(monitorName string, stats monitor.CycleStats, tracked int) {
	b.Hub.Publish(TypeCycle, struct {
		Monitor string `json:"monitor"`
		Tracked int    `json:"tracked"`
		monitor.CycleStats
	}{monitorName, tracked, stats})
}

func (b Bridge) SweepCompleted(name string, p retention.Progress) {
	b.Hub.Publish(TypeSweep, struct {
		Sweep string `json:"sweep"`
		retention.Progress
	}{name, p})
}
