package monitor

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_processor.go -package=mocks github.com/mattjoyce/intake/internal/monitor Processor

// Item is handed to the processor hooks. Scratch is created fresh for every
// item and dropped once the item has been routed.
type Item struct {
	Monitor string
	Name    string
	Path    string
	Scratch map[string]any
}

// Processor is the business logic run against each stable item.
type Processor interface {
	// Validate is called once when the task is built.
	Validate() error
	BeforeProcess(ctx context.Context, item *Item)
	Process(ctx context.Context, item *Item) error
	// OnSuccess and OnError return whether the cycle should go on to the next
	// waiting item.
	OnSuccess(ctx context.Context, item *Item, started time.Time) bool
	OnError(ctx context.Context, item *Item, started time.Time, err error) bool
}
