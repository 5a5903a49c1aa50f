// Package fsm advances one client at a time through its lifecycle, acting on
// the shared snapshot the resolver built for the current tick.
package fsm

import (
	"context"
	"errors"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/journal"
	"partysync/internal/party"
	"partysync/internal/resolver"
	"partysync/internal/routines"
	"partysync/internal/session"
	"partysync/internal/utility"
	"time"
)

// Cooldowns applied after each kind of action.
const (
	loginCooldown       = 1 * time.Second
	credentialsCooldown = 2 * time.Second
	createCooldown      = 1500 * time.Millisecond
	joinCooldown        = 2 * time.Second
	holdCooldown        = 1 * time.Second
	noLeaderCooldown    = 500 * time.Millisecond
	readyCooldown       = 1 * time.Second
	ingameCooldown      = 2 * time.Second
	claimWaitCooldown   = 2 * time.Second
	finishedCooldown    = 10 * time.Second
	failureCooldown     = 1 * time.Second
)

const (
	// SoftTimeout is how long a match may run before the client is assumed
	// back in the room.
	SoftTimeout = 6 * time.Minute

	claimAttempts = 3
	reprobeSettle = 300 * time.Millisecond
)

// Policy is the part of the mode switch policy the state machine drives.
type Policy interface {
	Active() string
	CheckSwitch() (target string, switchNeeded bool)
	ReportMatchFinished(ctx context.Context) (mode string, completed int, err error)
	SetActive(ctx context.Context, mode string) error
	SyncActive(ctx context.Context, detected string) error
}

type Machine struct {
	runner   *routines.Runner
	sessions session.Store
	policy   Policy
	clock    clock.Clock
	journal  *journal.Journal
}

func New(runner *routines.Runner, sessions session.Store, policy Policy, c clock.Clock, j *journal.Journal) *Machine {
	return &Machine{runner: runner, sessions: sessions, policy: policy, clock: c, journal: j}
}

// turn carries everything one Step needs.
type turn struct {
	c      *party.Client
	snap   *resolver.Snapshot
	roster *party.Roster
	role   journal.Role
	now    time.Time

	wait   time.Duration
	cooled bool
}

// cooldown asks for d of quiet once this step's actions are done. The last
// request wins.
func (t *turn) cooldown(d time.Duration) { t.wait, t.cooled = d, true }

// Step runs one action for c. Actuation failures are logged, put the client
// on a short cooldown and are returned; the client's state is left as it was
// so the next tick retries.
func (m *Machine) Step(ctx context.Context, c *party.Client, snap *resolver.Snapshot, roster *party.Roster) error {
	t := &turn{c: c, snap: snap, roster: roster, role: snap.Role(c.ID), now: m.clock.Now()}

	var err error
	if snap.AllDone {
		err = m.wrapUp(ctx, t)
	} else {
		err = m.step(ctx, t)
	}
	if err != nil && ctx.Err() == nil {
		m.journal.ClientWarn(c, t.role, "action failed", "err", err)
		t.cooldown(failureCooldown)
	}
	if t.cooled {
		c.Cooldown(m.clock.Now(), t.wait)
	}
	return err
}

func (m *Machine) step(ctx context.Context, t *turn) error {
	switch t.c.State {
	case party.StateLogin:
		return m.login(ctx, t)
	case party.StateLobby:
		return m.lobby(ctx, t)
	case party.StateRoom:
		return m.room(ctx, t)
	case party.StateInGame:
		return m.ingame(ctx, t)
	case party.StateClaiming:
		return m.claim(ctx, t)
	case party.StateFinished:
		t.cooldown(finishedCooldown)
		return nil
	default:
		m.journal.Client(t.c, t.role, "waiting for a recognisable screen")
		t.cooldown(holdCooldown)
		return nil
	}
}

// wrapUp drives every client toward the lobby and the reward claim once all
// targets are met.
func (m *Machine) wrapUp(ctx context.Context, t *turn) error {
	switch t.c.State {
	case party.StateFinished:
		t.cooldown(finishedCooldown)
		return nil
	case party.StateInGame:
		m.journal.Client(t.c, t.role, "targets met, waiting for match to end")
		t.cooldown(ingameCooldown)
		return nil
	case party.StateRoom:
		m.journal.Client(t.c, t.role, "targets met, leaving room")
		t.cooldown(joinCooldown)
		return m.runner.Back(ctx, t.c.ID)
	case party.StateLobby:
		t.c.Retries = 0
		m.journal.Transition(t.c, t.role, party.StateClaiming, "all targets met")
		return nil
	case party.StateClaiming:
		return m.claim(ctx, t)
	default:
		return m.step(ctx, t)
	}
}

func (m *Machine) login(ctx context.Context, t *turn) error {
	outcome, next, err := m.runner.LoginStep(ctx, t.c.ID, t.c.LoginStep, t.c.Account)
	t.c.LoginStep = next
	if outcome == routines.LoginNudged {
		t.c.Retries++
	}
	if err != nil {
		return err
	}
	m.journal.Client(t.c, t.role, "login step", "outcome", string(outcome), "step", next, "retries", t.c.Retries)
	if outcome == routines.LoginCredentials {
		t.cooldown(credentialsCooldown)
	} else {
		t.cooldown(loginCooldown)
	}
	return nil
}

func (m *Machine) lobby(ctx context.Context, t *turn) error {
	snap := t.snap
	joinable := snap.HasSession && snap.Session.Joinable()

	if snap.ActsAsLeader(t.c.ID) {
		if joinable && snap.Session.LeaderID == t.c.ID {
			m.journal.Client(t.c, t.role, "rejoining own room", "room", snap.RoomID)
			t.cooldown(joinCooldown)
			return m.runner.JoinRoom(ctx, t.c.ID, snap.RoomID)
		}
		return m.createRoom(ctx, t)
	}

	if !joinable {
		m.journal.Client(t.c, t.role, "waiting for a room id")
		t.cooldown(holdCooldown)
		return nil
	}
	m.journal.Client(t.c, t.role, "joining room", "room", snap.RoomID)
	t.cooldown(joinCooldown)
	return m.runner.JoinRoom(ctx, t.c.ID, snap.RoomID)
}

func (m *Machine) createRoom(ctx context.Context, t *turn) error {
	m.journal.Client(t.c, t.role, "creating room")
	t.cooldown(createCooldown)
	if err := m.runner.CreateRoom(ctx, t.c.ID); err != nil {
		return err
	}
	roomID, mode, err := m.runner.ExtractRoomInfo(ctx, t.c.ID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		m.journal.ClientWarn(t.c, t.role, "room id not readable, recording placeholder", "err", err)
		roomID = session.UnknownRoom
	}
	return m.recordRoom(ctx, t, roomID, mode)
}

// recordRoom persists roomID led by t.c. A detected mode is pushed into the
// policy; otherwise the policy's active mode is recorded.
func (m *Machine) recordRoom(ctx context.Context, t *turn, roomID, mode string) error {
	if mode != "" {
		if err := m.policy.SyncActive(ctx, mode); err != nil {
			m.journal.ClientWarn(t.c, t.role, "syncing active mode failed", "err", err)
		}
	} else {
		mode = m.policy.Active()
	}
	rec := session.Record{
		RoomID:    roomID,
		LeaderID:  t.c.ID,
		Mode:      mode,
		Timestamp: utility.UnixSeconds(m.clock.Now()),
	}
	saved, err := m.sessions.Save(ctx, rec, t.snap.SessionGen)
	if errors.Is(err, session.ErrConflict) {
		m.journal.Client(t.c, t.role, "session changed underneath, retrying next tick")
		return nil
	}
	if err != nil {
		return err
	}
	t.snap.SessionGen = saved.Generation
	m.journal.Client(t.c, t.role, "room recorded", "room", roomID, "mode", mode)
	m.journal.Publish(events.Event{
		Kind:   events.KindRoomRecorded,
		Client: t.c.ID,
		Index:  t.c.Index,
		RoomID: roomID,
		Mode:   mode,
	})
	return nil
}

func (m *Machine) room(ctx context.Context, t *turn) error {
	switch {
	case t.roster.Waiting():
		m.journal.Client(t.c, t.role, "waiting for the party to return", "returned", t.roster.Returned(), "size", t.roster.Size())
		t.cooldown(holdCooldown)
		return nil
	case !t.snap.HasLeader:
		m.journal.Client(t.c, t.role, "no leader known yet")
		t.cooldown(noLeaderCooldown)
		return nil
	case t.snap.IsLeader(t.c.ID):
		return m.lead(ctx, t)
	}

	if t.roster.AnyMatchStarted() {
		m.journal.Client(t.c, t.role, "match already launching")
		t.cooldown(readyCooldown)
		return nil
	}
	if t.snap.IsReady(t.c.ID) {
		m.journal.Client(t.c, t.role, "ready, waiting for leader")
		return nil
	}
	t.cooldown(readyCooldown)
	ok, err := m.runner.ClickReady(ctx, t.c.ID)
	if err != nil {
		return err
	}
	m.journal.Client(t.c, t.role, "clicked ready", "confirmed", ok)
	return nil
}

func (m *Machine) ingame(ctx context.Context, t *turn) error {
	inRoom := m.runner.InRoom(ctx, t.c.ID)
	inLobby := !inRoom && m.runner.InLobby(ctx, t.c.ID)
	if !inRoom && !inLobby {
		if err := clock.Sleep(ctx, m.clock, reprobeSettle); err != nil {
			return err
		}
		inRoom = m.runner.InRoom(ctx, t.c.ID)
		inLobby = !inRoom && m.runner.InLobby(ctx, t.c.ID)
	}

	switch {
	case inRoom:
		m.journal.Transition(t.c, t.role, party.StateRoom, "back in room after match")
		m.arrive(t)
	case inLobby:
		m.journal.Transition(t.c, t.role, party.StateLobby, "dropped to lobby after match")
	case t.c.InMatch() && t.now.Sub(t.c.MatchStartedAt) > SoftTimeout:
		m.journal.Transition(t.c, t.role, party.StateRoom, "match soft timeout")
		m.arrive(t)
	default:
		m.journal.Client(t.c, t.role, "match in progress")
		t.cooldown(ingameCooldown)
	}
	return nil
}

func (m *Machine) arrive(t *turn) {
	arrived, total, released := t.roster.MarkReturned(t.c.ID)
	if released {
		m.journal.Logger().Info("whole party back in room", "size", total)
		m.journal.Publish(events.Event{Kind: events.KindBarrierReleased, Completed: total})
		return
	}
	m.journal.Client(t.c, t.role, "back in room, waiting for the rest", "arrived", arrived, "total", total)
}

// claim lets the lowest-ordinal claiming client collect the day's rewards.
func (m *Machine) claim(ctx context.Context, t *turn) error {
	if first := t.roster.FirstInState(party.StateClaiming); first == nil || first.ID != t.c.ID {
		m.journal.Client(t.c, t.role, "waiting for turn to claim")
		t.cooldown(claimWaitCooldown)
		return nil
	}
	if !m.runner.InLobby(ctx, t.c.ID) {
		m.journal.Client(t.c, t.role, "returning to lobby before claiming")
		t.cooldown(holdCooldown)
		return m.runner.Back(ctx, t.c.ID)
	}

	n, err := m.runner.ClaimRewards(ctx, t.c.ID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		t.c.Retries++
		if t.c.Retries < claimAttempts {
			m.journal.ClientWarn(t.c, t.role, "claim failed, will retry", "attempt", t.c.Retries, "err", err)
			t.cooldown(claimWaitCooldown)
			return nil
		}
		m.journal.ClientWarn(t.c, t.role, "claim failed, giving up", "attempts", t.c.Retries, "err", err)
	}
	t.c.Retries = 0
	m.journal.Transition(t.c, t.role, party.StateFinished, "rewards claimed")
	m.journal.Publish(events.Event{Kind: events.KindRewardsClaimed, Client: t.c.ID, Index: t.c.Index, Completed: n})
	t.cooldown(finishedCooldown)
	return nil
}
