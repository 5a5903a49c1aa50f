// Package orchestrator owns the control loop: every tick it resolves the
// party's shared view, steps each client that is off cooldown and publishes a
// status copy for everything outside the loop.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/fsm"
	"partysync/internal/journal"
	"partysync/internal/modes"
	"partysync/internal/party"
	"partysync/internal/resolver"
	"partysync/internal/routines"
	"partysync/internal/session"
	"runtime/debug"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const DefaultTickInterval = 100 * time.Millisecond

// Policy is everything the loop needs from the mode switch policy.
type Policy interface {
	fsm.Policy
	IsAllSatisfied() bool
	ResetCounts(ctx context.Context) error
	Progress() []modes.ModeProgress
}

type Config struct {
	TickInterval        time.Duration
	LeaderConfirmations int
	Parallelism         int
}

type Deps struct {
	Roster   *party.Roster
	Runner   *routines.Runner
	Sessions session.Store
	Policy   Policy
	Clock    clock.Clock
	Journal  *journal.Journal
	Control  *Control
}

type Orchestrator struct {
	cfg      Config
	runID    string
	roster   *party.Roster
	sessions session.Store
	policy   Policy
	clock    clock.Clock
	journal  *journal.Journal
	logger   *slog.Logger
	control  *Control
	resolver *resolver.Resolver
	machine  *fsm.Machine

	ticks  uint64
	status atomic.Pointer[Status]
}

func New(cfg Config, d Deps) *Orchestrator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if d.Control == nil {
		d.Control = NewControl()
	}
	o := &Orchestrator{
		cfg:      cfg,
		runID:    uuid.NewString(),
		roster:   d.Roster,
		sessions: d.Sessions,
		policy:   d.Policy,
		clock:    d.Clock,
		journal:  d.Journal,
		logger:   d.Journal.Logger().With("component", "orchestrator"),
		control:  d.Control,
		resolver: resolver.New(resolver.Config{
			LeaderConfirmations: cfg.LeaderConfirmations,
			Parallelism:         cfg.Parallelism,
		}, d.Runner, d.Sessions, d.Policy, d.Clock, d.Journal),
		machine: fsm.New(d.Runner, d.Sessions, d.Policy, d.Clock, d.Journal),
	}
	o.status.Store(&Status{RunID: o.runID})
	return o
}

func (o *Orchestrator) RunID() string { return o.runID }

func (o *Orchestrator) Control() *Control { return o.control }

// Status returns the copy published after the most recent tick.
func (o *Orchestrator) Status() *Status { return o.status.Load() }

// Run ticks until the context ends, Stop is called or the day's work is done.
// The session record is cleared on the way in and on the way out, since a
// room from another run cannot be trusted.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.control.Stopped():
			o.logger.Info("stop requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	o.clearSession(ctx, "startup")
	defer o.clearSession(context.WithoutCancel(ctx), "shutdown")

	o.logger.Info("coordinator running", "run", o.runID, "clients", o.roster.Size(), "tick", o.cfg.TickInterval)
	for {
		if o.Tick(ctx) {
			o.logger.Info("every target met and every client finished")
			o.journal.Publish(events.Event{Kind: events.KindFinished, Message: "all done"})
			return nil
		}
		if err := clock.Sleep(ctx, o.clock, o.cfg.TickInterval); err != nil {
			o.logger.Info("coordinator stopped", "ticks", o.ticks)
			return nil
		}
	}
}

// Tick runs one pass of the loop and reports whether the run is complete. A
// panic inside the tick is logged and swallowed.
func (o *Orchestrator) Tick(ctx context.Context) (done bool) {
	started := o.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			done = false
		}
	}()
	o.ticks++

	if o.control.takeReset() {
		o.reset(ctx)
	}

	paused := o.control.Paused()
	o.journal.Metrics().SetPaused(paused)
	if paused {
		o.publish(nil, true)
		return false
	}

	snap := o.resolver.Resolve(ctx, o.roster)
	for _, c := range o.roster.List() {
		if ctx.Err() != nil {
			return false
		}
		if !c.Ready(o.clock.Now()) {
			continue
		}
		o.machine.Step(ctx, c, &snap, o.roster)
	}

	for _, p := range o.policy.Progress() {
		o.journal.Metrics().SetModeProgress(p.ID, p.Completed, p.Target)
	}
	o.journal.Metrics().ObserveTick(o.clock.Now().Sub(started))
	o.publish(&snap, false)

	return snap.AllDone && o.roster.AllInState(party.StateFinished)
}

func (o *Orchestrator) reset(ctx context.Context) {
	o.logger.Info("resetting progress and client state")
	o.roster.ResetAll()
	o.resolver.Reset()
	o.journal.Reset()
	o.clearSession(ctx, "reset")
	if err := o.policy.ResetCounts(ctx); err != nil {
		o.logger.Error("resetting progress", "err", err)
	}
	o.journal.Publish(events.Event{Kind: events.KindReset})
}

func (o *Orchestrator) clearSession(ctx context.Context, reason string) {
	if err := o.sessions.Clear(ctx); err != nil {
		o.logger.Warn("clearing session record", "reason", reason, "err", err)
		return
	}
	o.journal.Metrics().SessionCleared(reason)
	o.logger.Debug("session record cleared", "reason", reason)
}

// Pause, Resume and the exception notifications are called from outside the
// loop; they only flip Control and announce the change.

func (o *Orchestrator) Pause() {
	if o.control.Pause() {
		o.announcePause("manual")
	}
}

func (o *Orchestrator) Resume() {
	if o.control.Resume() {
		o.announceResume("manual")
	}
}

// Toggle flips between paused and running, the way the pause hotkey does.
func (o *Orchestrator) Toggle() {
	paused, changed := o.control.Toggle()
	switch {
	case !changed:
	case paused:
		o.announcePause("manual")
	default:
		o.announceResume("manual")
	}
}

func (o *Orchestrator) NotifyException(id party.ClientID, kind string) {
	o.logger.Warn("client exception", "client", id, "kind", kind)
	if o.control.NotifyException(id, kind) {
		o.announcePause(kind)
	}
}

func (o *Orchestrator) NotifyRecovered(id party.ClientID) {
	o.logger.Info("client recovered", "client", id)
	if o.control.NotifyRecovered(id) {
		o.announceResume("recovered")
	}
}

func (o *Orchestrator) RequestReset() { o.control.RequestReset() }

func (o *Orchestrator) Stop() { o.control.Stop() }

func (o *Orchestrator) announcePause(reason string) {
	o.logger.Info("paused", "reason", reason)
	o.journal.Metrics().SetPaused(true)
	o.journal.Publish(events.Event{Kind: events.KindPaused, Message: reason})
}

func (o *Orchestrator) announceResume(reason string) {
	o.logger.Info("resumed", "reason", reason)
	o.journal.Metrics().SetPaused(false)
	o.journal.Publish(events.Event{Kind: events.KindResumed, Message: reason})
}

// Status is a point-in-time copy of the loop's view, safe to share.
type Status struct {
	RunID      string               `json:"run_id"`
	Tick       uint64               `json:"tick"`
	At         time.Time            `json:"at"`
	Paused     bool                 `json:"paused"`
	Manual     bool                 `json:"manual_pause"`
	Exceptions map[string]string    `json:"exceptions,omitempty"`
	RoomID     string               `json:"room_id,omitempty"`
	Mode       string               `json:"mode,omitempty"`
	Leader     party.ClientID       `json:"leader,omitempty"`
	Waiting    bool                 `json:"waiting_for_party"`
	Returned   int                  `json:"returned"`
	AllDone    bool                 `json:"all_done"`
	Clients    []ClientStatus       `json:"clients"`
	Modes      []modes.ModeProgress `json:"modes"`
}

type ClientStatus struct {
	ID            party.ClientID `json:"id"`
	Index         int            `json:"index"`
	State         party.State    `json:"state"`
	Role          journal.Role   `json:"role"`
	InMatch       bool           `json:"in_match"`
	InRoom        bool           `json:"in_room"`
	Ready         bool           `json:"ready"`
	CooldownUntil time.Time      `json:"cooldown_until"`
}

func (o *Orchestrator) publish(snap *resolver.Snapshot, paused bool) {
	st := &Status{
		RunID:    o.runID,
		Tick:     o.ticks,
		At:       o.clock.Now(),
		Paused:   paused,
		Manual:   o.control.Manual(),
		Waiting:  o.roster.Waiting(),
		Returned: o.roster.Returned(),
		Modes:    o.policy.Progress(),
	}
	if ex := o.control.Exceptions(); len(ex) > 0 {
		st.Exceptions = make(map[string]string, len(ex))
		for id, kind := range ex {
			st.Exceptions[id.String()] = kind
		}
	}
	if prev := o.status.Load(); snap == nil && prev != nil {
		st.RoomID, st.Mode, st.Leader, st.AllDone = prev.RoomID, prev.Mode, prev.Leader, prev.AllDone
	}
	if snap != nil {
		st.RoomID, st.Mode, st.AllDone = snap.RoomID, snap.Mode, snap.AllDone
		if snap.HasLeader {
			st.Leader = snap.Leader
		}
	}
	for _, c := range o.roster.List() {
		cs := ClientStatus{
			ID:            c.ID,
			Index:         c.Index,
			State:         c.State,
			Role:          journal.RoleMember,
			InMatch:       c.InMatch(),
			CooldownUntil: c.CooldownUntil,
		}
		if snap != nil {
			cs.Role = snap.Role(c.ID)
			cs.InRoom = slices.Contains(snap.RoomMembers, c.ID) || (snap.IsLeader(c.ID) && c.State == party.StateRoom)
			cs.Ready = snap.IsReady(c.ID)
		}
		st.Clients = append(st.Clients, cs)
	}
	o.status.Store(st)
}
