// Package resolver turns one round of per-client observations into a single
// consistent view of the party: who leads, which room, who is in it and who
// is ready.
package resolver

import (
	"context"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/journal"
	"partysync/internal/party"
	"partysync/internal/routines"
	"partysync/internal/session"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// Snapshot is the party as seen in one tick. There is exactly one leader
// field, so two leaders in one view cannot happen.
type Snapshot struct {
	At time.Time

	Session      session.Record
	HasSession   bool
	SessionGen   uint64
	RoomID       string
	Mode         string
	Leader       party.ClientID
	HasLeader    bool
	Candidate    party.ClientID
	PartySize    int
	RoomMembers  []party.ClientID
	ReadyMembers []party.ClientID
	AllDone      bool
}

func (s *Snapshot) IsLeader(id party.ClientID) bool {
	return s.HasLeader && s.Leader == id
}

// ActsAsLeader reports whether id should take leader duties: it is the
// leader, or there is none and it is the candidate.
func (s *Snapshot) ActsAsLeader(id party.ClientID) bool {
	if s.HasLeader {
		return s.Leader == id
	}
	return s.Candidate == id
}

func (s *Snapshot) Role(id party.ClientID) journal.Role {
	switch {
	case s.IsLeader(id):
		return journal.RoleLeader
	case !s.HasLeader && s.Candidate == id:
		return journal.RoleCandidate
	default:
		return journal.RoleMember
	}
}

func (s *Snapshot) IsReady(id party.ClientID) bool {
	return slices.Contains(s.ReadyMembers, id)
}

// Progress is the policy surface the resolver reads.
type Progress interface {
	Active() string
	IsAllSatisfied() bool
}

type Config struct {
	// LeaderConfirmations is how many consecutive ticks a new leader must be
	// detected before it replaces the previous one.
	LeaderConfirmations int
	// Parallelism bounds concurrent probes; 0 means one per client.
	Parallelism int
}

type Resolver struct {
	cfg      Config
	runner   *routines.Runner
	sessions session.Store
	progress Progress
	clock    clock.Clock
	journal  *journal.Journal

	known        party.ClientID
	hasKnown     bool
	pending      party.ClientID
	pendingCount int
}

func New(cfg Config, runner *routines.Runner, sessions session.Store, progress Progress, c clock.Clock, j *journal.Journal) *Resolver {
	if cfg.LeaderConfirmations < 1 {
		cfg.LeaderConfirmations = 1
	}
	return &Resolver{cfg: cfg, runner: runner, sessions: sessions, progress: progress, clock: c, journal: j}
}

// Reset forgets the previously known leader.
func (r *Resolver) Reset() {
	r.hasKnown = false
	r.pendingCount = 0
}

type sighting struct {
	start bool
	obs   Observation
}

func (r *Resolver) look(ctx context.Context, clients []*party.Client) []sighting {
	out := make([]sighting, len(clients))
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Parallelism > 0 {
		g.SetLimit(r.cfg.Parallelism)
	}
	for i, c := range clients {
		g.Go(func() error {
			out[i] = sighting{
				start: r.runner.HasStartButton(gctx, c.ID),
				obs: Observation{
					InRoom:  r.runner.InRoom(gctx, c.ID),
					InLobby: r.runner.InLobby(gctx, c.ID),
				},
			}
			return nil
		})
	}
	g.Wait()
	return out
}

func (r *Resolver) readiness(ctx context.Context, ids []party.ClientID) []party.ClientID {
	ready := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Parallelism > 0 {
		g.SetLimit(r.cfg.Parallelism)
	}
	for i, id := range ids {
		g.Go(func() error {
			ready[i] = r.runner.IsReady(gctx, id)
			return nil
		})
	}
	g.Wait()

	var out []party.ClientID
	for i, id := range ids {
		if ready[i] {
			out = append(out, id)
		}
	}
	return out
}

// Resolve builds this tick's snapshot and applies state inference to every
// client in the roster.
func (r *Resolver) Resolve(ctx context.Context, roster *party.Roster) Snapshot {
	now := r.clock.Now()
	clients := roster.List()
	snap := Snapshot{At: now, Mode: r.progress.Active(), PartySize: len(clients)}

	rec, live, err := session.Current(ctx, r.sessions, now)
	if err != nil {
		r.journal.Logger().Warn("session record unreadable", "err", err)
	}
	snap.SessionGen = rec.Generation
	if live {
		snap.Session, snap.HasSession = rec, true
		snap.RoomID = rec.RoomID
		if rec.Mode != "" {
			snap.Mode = rec.Mode
		}
	}

	seen := r.look(ctx, clients)
	r.elect(&snap, clients, seen)

	var inRoom []party.ClientID
	for i, c := range clients {
		r.apply(ctx, c, seen[i].obs, &snap, roster, now)
		if seen[i].obs.InRoom && !snap.IsLeader(c.ID) {
			inRoom = append(inRoom, c.ID)
		}
	}
	snap.RoomMembers = inRoom
	snap.ReadyMembers = r.readiness(ctx, inRoom)
	snap.AllDone = r.progress.IsAllSatisfied()
	return snap
}

func (r *Resolver) elect(snap *Snapshot, clients []*party.Client, seen []sighting) {
	if len(clients) > 0 {
		snap.Candidate = clients[0].ID
	}

	var detected *party.Client
	for i, c := range clients {
		if seen[i].start {
			detected = c
			break
		}
	}

	if detected == nil {
		r.pendingCount = 0
		if snap.HasSession && slices.ContainsFunc(clients, func(c *party.Client) bool { return c.ID == snap.Session.LeaderID }) {
			snap.Leader, snap.HasLeader = snap.Session.LeaderID, true
			snap.Candidate = snap.Leader
		}
		return
	}

	accept := !r.hasKnown || r.known == detected.ID || r.cfg.LeaderConfirmations <= 1
	if !accept {
		if r.pending == detected.ID {
			r.pendingCount++
		} else {
			r.pending, r.pendingCount = detected.ID, 1
		}
		accept = r.pendingCount >= r.cfg.LeaderConfirmations
	}
	if accept {
		if !r.hasKnown || r.known != detected.ID {
			r.journal.Logger().Info("leader detected", "client", detected.Index, "previous_known", r.hasKnown)
			r.journal.Metrics().LeaderChanged()
			r.journal.Publish(events.Event{Kind: events.KindLeaderChanged, Client: detected.ID, Index: detected.Index})
		}
		r.known, r.hasKnown = detected.ID, true
		r.pendingCount = 0
	}
	snap.Leader, snap.HasLeader = r.known, true
	snap.Candidate = snap.Leader
}

func (r *Resolver) apply(ctx context.Context, c *party.Client, obs Observation, snap *Snapshot, roster *party.Roster, now time.Time) {
	inf := Infer(c.State, obs, c.MatchStartedAt, now)
	state := inf.State
	if inf.CheckLogin && r.runner.OnLoginScreen(ctx, c.ID) {
		state = party.StateLogin
	}
	if inf.MatchLost {
		c.MatchStartedAt = time.Time{}
	}
	// An INGAME client always carries a start time so both match timeouts
	// can fire, even after a barrier release cleared it.
	if (inf.MatchStarted || state == party.StateInGame) && c.MatchStartedAt.IsZero() {
		c.MatchStartedAt = now
	}
	role := snap.Role(c.ID)
	r.journal.Transition(c, role, state, inf.Reason)

	if state == party.StateRoom && (inf.Returned || roster.Waiting()) {
		arrived, total, released := roster.MarkReturned(c.ID)
		if released {
			r.journal.Logger().Info("whole party back in room", "size", total)
			r.journal.Publish(events.Event{Kind: events.KindBarrierReleased, Completed: total})
			return
		}
		r.journal.Client(c, role, "back in room, waiting for the rest", "arrived", arrived, "total", total)
	}
}
