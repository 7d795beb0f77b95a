// Package layout names the working areas under a monitored input directory.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	ProcessDir = ".process"
	ArchiveDir = ".archive"
	ErrorDir   = ".error"

	LockSuffix       = ".lock"
	DiagnosticSuffix = ".errorlog"
	PartialSuffix    = ".part"

	// DateLayout partitions the archive and error areas by day.
	DateLayout = "2006-01-02"
)

// Dirs holds the absolute paths of one monitor's areas.
type Dirs struct {
	Input   string
	Process string
	Archive string
	Error   string
}

// For derives the working areas of input.
func For(input string) (Dirs, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return Dirs{}, fmt.Errorf("resolve input directory %q: %w", input, err)
	}
	return Dirs{
		Input:   abs,
		Process: filepath.Join(abs, ProcessDir),
		Archive: filepath.Join(abs, ArchiveDir),
		Error:   filepath.Join(abs, ErrorDir),
	}, nil
}

// Ensure creates every area that does not exist yet.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Input, d.Process, d.Archive, d.Error} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Dated returns root/<yyyy-MM-dd> for t.
func Dated(root string, t time.Time) string {
	return filepath.Join(root, t.Format(DateLayout))
}

// CollisionPrefix renders t as yyyyMMdd_HHmmssSSS_.
func CollisionPrefix(t time.Time) string {
	return fmt.Sprintf("%s%03d_", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// LockPath is the lock sentinel guarding item.
func LockPath(item string) string {
	return item + LockSuffix
}

// IsSidecar reports whether name is bookkeeping rather than an ingested item.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, LockSuffix) ||
		strings.HasSuffix(name, DiagnosticSuffix) ||
		strings.HasSuffix(name, PartialSuffix)
}

// IsHidden reports whether name starts with a dot.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
