// Package logging builds the process logger and the per-client line
// de-duplication used by the coordinator.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// New returns a logger writing to w. format is "text" or "json".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Discard is a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dedup remembers the last line logged for each key and reports whether a
// new line differs from it, so a client stuck in one state logs once rather
// than every tick.
type Dedup struct {
	mu   sync.Mutex
	last map[string]string
}

func NewDedup() *Dedup {
	return &Dedup{last: make(map[string]string)}
}

// Fresh records msg for key and reports whether it differs from the previous
// line for that key.
func (d *Dedup) Fresh(key, msg string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last[key] == msg {
		return false
	}
	d.last[key] = msg
	return true
}

func (d *Dedup) Reset() {
	d.mu.Lock()
	d.last = make(map[string]string)
	d.mu.Unlock()
}
