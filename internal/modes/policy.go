// Package modes decides which game mode the party should be playing, counts
// completed matches per mode and persists that progress across restarts
// within a day.
package modes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"partysync/internal/clock"
	"partysync/internal/profile"
	"partysync/internal/progress"
	"partysync/internal/utility"
	"sync"
)

// FallbackTarget applies when no configuration names a target for a mode.
const FallbackTarget = 5

// UnknownMode is reported when the running mode could not be read.
const UnknownMode = "unknown"

type Policy struct {
	mu      sync.Mutex
	store   progress.Store
	clock   clock.Clock
	logger  *slog.Logger
	catalog []profile.Mode
	targets map[string]int
	rec     progress.Record
}

// ModeProgress is one line of the progress report.
type ModeProgress struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Completed int    `json:"completed"`
	Target    int    `json:"target"`
	Active    bool   `json:"active"`
}

// ResolveTarget picks the target for one mode: an enabled mode_control task
// first, then an enabled daily task, then the catalog value, then
// FallbackTarget.
func ResolveTarget(m profile.Mode, tasks profile.Tasks) int {
	if tasks.ModeControl.Enabled {
		for _, t := range tasks.ModeControl.Tasks {
			if t.ID == m.ID && (t.Enabled == nil || *t.Enabled) {
				return t.Target
			}
		}
	}
	if d, ok := tasks.DailyTasks[m.ID]; ok && (d.Enabled == nil || *d.Enabled) {
		return d.TargetGames
	}
	if m.TargetGames > 0 {
		return m.TargetGames
	}
	return FallbackTarget
}

// NewPolicy loads persisted progress, discarding it if it was written on an
// earlier calendar day.
func NewPolicy(ctx context.Context, store progress.Store, prof *profile.Profile, c clock.Clock, logger *slog.Logger) (*Policy, error) {
	if len(prof.Modes) == 0 {
		return nil, errors.New("mode catalog is empty")
	}
	p := &Policy{
		store:   store,
		clock:   c,
		logger:  logger.With("component", "modes"),
		catalog: prof.Modes,
		targets: make(map[string]int, len(prof.Modes)),
	}
	for _, m := range prof.Modes {
		p.targets[m.ID] = ResolveTarget(m, prof.Tasks)
	}

	now := c.Now()
	rec, err := store.Load(ctx)
	switch {
	case errors.Is(err, progress.ErrNotFound):
		rec = p.freshRecord(prof.DefaultMode)
	case err != nil:
		p.logger.Warn("progress unreadable, starting from zero", "err", err)
		rec = p.freshRecord(prof.DefaultMode)
	case !rec.SameDay(now):
		p.logger.Info("new day, progress reset", "previous", rec.WrittenAt().Format("2006-01-02"))
		rec = p.freshRecord(prof.DefaultMode)
	}
	if _, ok := prof.Mode(rec.LastMode); !ok {
		rec.LastMode = prof.DefaultMode
	}
	for _, m := range prof.Modes {
		if _, ok := rec.Counts[m.ID]; !ok {
			rec.Counts[m.ID] = 0
		}
	}
	p.rec = rec
	if err := p.saveLocked(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) freshRecord(active string) progress.Record {
	rec := progress.Record{LastMode: active, Counts: make(map[string]int, len(p.catalog))}
	for _, m := range p.catalog {
		rec.Counts[m.ID] = 0
	}
	return rec
}

func (p *Policy) saveLocked(ctx context.Context) error {
	p.rec.Timestamp = utility.UnixSeconds(p.clock.Now())
	if err := p.store.Save(ctx, p.rec.Clone()); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

func (p *Policy) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.LastMode
}

func (p *Policy) Target(mode string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targets[mode]
}

func (p *Policy) Completed(mode string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.Counts[mode]
}

func (p *Policy) incomplete(mode string) bool {
	return p.rec.Counts[mode] < p.targets[mode]
}

// CheckSwitch reports the mode the party should play next and whether that
// differs from the active one. It does not change any state.
func (p *Policy) CheckSwitch() (target string, switchNeeded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.rec.LastMode
	if p.incomplete(active) {
		return active, false
	}

	start := 0
	for i, m := range p.catalog {
		if m.ID == active {
			start = i + 1
			break
		}
	}
	n := len(p.catalog)
	for k := 0; k < n; k++ {
		m := p.catalog[(start+k)%n]
		if m.ID == active {
			break
		}
		if p.incomplete(m.ID) {
			return m.ID, true
		}
	}
	return active, false
}

// ReportMatchFinished credits one match to the active mode and persists the
// new count before returning.
func (p *Policy) ReportMatchFinished(ctx context.Context) (mode string, completed int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mode = p.rec.LastMode
	p.rec.Counts[mode]++
	completed = p.rec.Counts[mode]
	p.logger.Info("match counted", "mode", mode, "completed", completed, "target", p.targets[mode])
	return mode, completed, p.saveLocked(ctx)
}

// SetActive records a confirmed mode change.
func (p *Policy) SetActive(ctx context.Context, mode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.targets[mode]; !ok {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if p.rec.LastMode == mode {
		return nil
	}
	p.logger.Info("active mode changed", "from", p.rec.LastMode, "to", mode)
	p.rec.LastMode = mode
	return p.saveLocked(ctx)
}

// SyncActive aligns the active mode with what was read off the screen.
// Unreadable or unknown modes are ignored.
func (p *Policy) SyncActive(ctx context.Context, detected string) error {
	if detected == "" || detected == UnknownMode {
		return nil
	}
	p.mu.Lock()
	_, known := p.targets[detected]
	p.mu.Unlock()
	if !known {
		return nil
	}
	return p.SetActive(ctx, detected)
}

// IsAllSatisfied reports whether every mode with a positive target has met it.
func (p *Policy) IsAllSatisfied() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, target := range p.targets {
		if target > 0 && p.rec.Counts[id] < target {
			return false
		}
	}
	return true
}

// ResetCounts zeroes every completed count. Targets are configuration and
// stay as they are.
func (p *Policy) ResetCounts(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.rec.Counts {
		p.rec.Counts[id] = 0
	}
	return p.saveLocked(ctx)
}

func (p *Policy) Progress() []ModeProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ModeProgress, 0, len(p.catalog))
	for _, m := range p.catalog {
		out = append(out, ModeProgress{
			ID:        m.ID,
			Name:      m.Name,
			Completed: p.rec.Counts[m.ID],
			Target:    p.targets[m.ID],
			Active:    m.ID == p.rec.LastMode,
		})
	}
	return out
}
