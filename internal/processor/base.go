// Package processor provides the processors a monitor can be configured with.
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/intake/internal/monitor"
)

// Scratch keys set by Base.BeforeProcess.
const (
	CorrelationID = "correlation_id"
	FileName      = "file_name"
)

// Base implements every hook except Process. Embed it and add Process.
type Base struct {
	Logger *slog.Logger
}

func (b Base) Validate() error { return nil }

// BeforeProcess tags the item with a fresh correlation id and its file name.
func (b Base) BeforeProcess(_ context.Context, item *monitor.Item) {
	item.Scratch[CorrelationID] = uuid.NewString()
	item.Scratch[FileName] = item.Name
}

func (b Base) OnSuccess(_ context.Context, item *monitor.Item, started time.Time) bool {
	b.logger().Info("Item processed",
		"item", item.Name,
		"correlation_id", item.Scratch[CorrelationID],
		"duration", time.Since(started),
	)
	return true
}

func (b Base) OnError(_ context.Context, item *monitor.Item, started time.Time, err error) bool {
	b.logger().Warn("Item failed",
		"item", item.Name,
		"correlation_id", item.Scratch[CorrelationID],
		"duration", time.Since(started),
		"error", err,
	)
	return true
}

func (b Base) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// Noop accepts every item.
type Noop struct {
	Base
}

var _ monitor.Processor = Noop{}

func (n Noop) Process(_ context.Context, item *monitor.Item) error {
	n.logger().Debug("Accepting item", "item", item.Name, "path", item.Path)
	return nil
}
