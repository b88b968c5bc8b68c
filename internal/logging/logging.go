// Package logging builds the structured loggers shared by every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// New returns the root logger writing to w. Debug lowers the level to
// DebugLevel; otherwise InfoLevel is used.
func New(w io.Writer, debug bool) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Prefix:          "memory-server",
	})
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component derives a logger tagged with the component name. A nil parent
// falls back to log.Default().
func Component(parent *log.Logger, name string) *log.Logger {
	if parent == nil {
		parent = log.Default()
	}
	return parent.With("component", name)
}
