// Package outcome places finished items in the archive or error areas and
// fans the resulting records out to sinks.
package outcome

import (
	"context"
	"log/slog"
	"time"
)

// Kind is the terminal placement of an item.
type Kind string

const (
	KindArchived Kind = "archived"
	KindDeleted  Kind = "deleted"
	KindError    Kind = "error"
)

// Record describes one terminal placement. It is produced once per item and
// never revisited.
type Record struct {
	ID             string    `json:"id"`
	Monitor        string    `json:"monitor"`
	Item           string    `json:"item"`
	Kind           Kind      `json:"kind"`
	Path           string    `json:"path,omitempty"`
	DiagnosticPath string    `json:"diagnostic_path,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Size           int64     `json:"size"`
	Digest         string    `json:"digest,omitempty"`
	Retained       bool      `json:"retained"`
	At             time.Time `json:"at"`
}

// Sink receives every record the router produces. Sink errors are logged and
// never change the placement.
type Sink interface {
	Accept(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Accept(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Handler is told about local filesystem failures and decides whether an item
// routed to error is kept.
type Handler interface {
	OnMoveFailure(src, dst string, err error)
	OnDeleteFailure(path string, err error)
	// RetainError is asked after an item and its diagnostic were written to
	// the error area. Returning false deletes both.
	RetainError(item, diagnostic string, cause error) bool
}

// LogHandler logs failures and keeps every error item.
type LogHandler struct {
	Logger *slog.Logger
}

var _ Handler = LogHandler{}

func (h LogHandler) OnMoveFailure(src, dst string, err error) {
	h.logger().Error("Failed to move file", "src", src, "dst", dst, "error", err)
}

func (h LogHandler) OnDeleteFailure(path string, err error) {
	h.logger().Error("Failed to delete file", "path", path, "error", err)
}

func (h LogHandler) RetainError(item, _ string, cause error) bool {
	h.logger().Warn("Item moved to error", "path", item, "error", cause)
	return true
}

func (h LogHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Diagnoser is implemented by errors that carry more detail than Error(),
// such as a stack trace or captured stderr.
type Diagnoser interface {
	Diagnostic() string
}
