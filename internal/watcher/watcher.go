// Package watcher dismisses pop-up dialogs (announcements, network notices,
// reward toasts) that can appear on any client at any time and would
// otherwise block the coordinator's probes.
package watcher

import (
	"context"
	"log/slog"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/journal"
	"partysync/internal/party"
	"partysync/internal/profile"
	"partysync/internal/vision"
	"sync"
	"time"
)

type Watcher struct {
	port    vision.Port
	cfg     profile.Interrupts
	roster  *party.Roster
	clock   clock.Clock
	journal *journal.Journal
	logger  *slog.Logger

	mu   sync.Mutex
	last map[party.ClientID]time.Time
}

// New returns a watcher for the configured interrupt templates. port should
// be the same vision.Guard the control loop uses so key presses never
// interleave with the loop's own actions on a client.
func New(port vision.Port, cfg profile.Interrupts, roster *party.Roster, c clock.Clock, j *journal.Journal) *Watcher {
	return &Watcher{
		port:    port,
		cfg:     cfg,
		roster:  roster,
		clock:   c,
		journal: j,
		logger:  j.Logger().With("component", "watcher"),
		last:    make(map[party.ClientID]time.Time),
	}
}

// Run scans every Interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.cfg.Enabled || len(w.cfg.Templates) == 0 {
		w.logger.Info("interrupt watcher disabled")
		return nil
	}
	w.logger.Info("interrupt watcher running", "templates", len(w.cfg.Templates), "interval", w.cfg.Interval)
	for {
		w.Scan(ctx)
		if err := clock.Sleep(ctx, w.clock, w.cfg.Interval); err != nil {
			return nil
		}
	}
}

// Scan probes every client once and dismisses at most one dialog per client.
// A client that was just handled is skipped until the debounce passes. It
// returns how many dialogs were dismissed.
func (w *Watcher) Scan(ctx context.Context) int {
	n := 0
	for _, c := range w.roster.List() {
		if ctx.Err() != nil {
			return n
		}
		if !w.due(c.ID) {
			continue
		}
		if w.dismiss(ctx, c) {
			n++
		}
	}
	return n
}

func (w *Watcher) due(id party.ClientID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.last[id]
	return !ok || w.clock.Now().Sub(last) >= w.cfg.Debounce
}

func (w *Watcher) dismiss(ctx context.Context, c *party.Client) bool {
	for _, t := range w.cfg.Templates {
		m, err := w.port.Probe(ctx, c.ID, t)
		if err != nil || !m.Matched {
			continue
		}
		w.mu.Lock()
		w.last[c.ID] = w.clock.Now()
		w.mu.Unlock()

		if err := w.port.PressKey(ctx, c.ID, w.cfg.Key); err != nil {
			w.logger.Warn("dismissing dialog failed", "client", c.Index, "image", t.Image, "err", err)
			return false
		}
		w.logger.Info("dialog dismissed", "client", c.Index, "image", t.Image, "confidence", m.Confidence)
		w.journal.Metrics().InterruptDismissed(c.Index)
		w.journal.Publish(events.Event{Kind: events.KindInterrupt, Client: c.ID, Index: c.Index, Message: t.Image})
		return true
	}
	return false
}
