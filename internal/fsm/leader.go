package fsm

import (
	"context"
	"partysync/internal/events"
	"partysync/internal/party"
	"partysync/internal/utility"
	"time"
)

const (
	// EmptyRoomLimit is how long the leader may sit in a recorded room with
	// nobody else in it before the room is abandoned.
	EmptyRoomLimit = 20 * time.Second

	abandonCooldown = 3 * time.Second
	recordCooldown  = 1 * time.Second
	switchCooldown  = 5 * time.Second
	startCooldown   = 8 * time.Second
	quorumCooldown  = 500 * time.Millisecond
)

// lead runs one round of the leader's room duties: abandon an empty room,
// record the room, switch modes and start the match once enough members are
// in and ready.
func (m *Machine) lead(ctx context.Context, t *turn) error {
	snap := t.snap

	if snap.RoomID != "" && len(snap.RoomMembers) == 0 && snap.PartySize > 1 {
		since := t.roster.EmptyRoomSince(t.c.ID, t.now)
		if t.now.Sub(since) > EmptyRoomLimit {
			return m.abandonRoom(ctx, t)
		}
	} else {
		t.roster.ClearEmptyRoom(t.c.ID)
	}

	if !snap.HasSession || !snap.Session.Joinable() || snap.Session.LeaderID != t.c.ID {
		t.cooldown(recordCooldown)
		roomID, mode, err := m.runner.ExtractRoomInfo(ctx, t.c.ID)
		if err != nil {
			return err
		}
		return m.recordRoom(ctx, t, roomID, mode)
	}

	if target, switchNeeded := m.policy.CheckSwitch(); switchNeeded {
		if target == snap.Mode {
			if err := m.policy.SetActive(ctx, target); err != nil {
				return err
			}
		} else {
			return m.switchMode(ctx, t, target)
		}
	}

	need := snap.PartySize - 1
	inRoom, ready := len(snap.RoomMembers), len(snap.ReadyMembers)
	if inRoom < need || ready < need {
		m.journal.Client(t.c, t.role, "waiting for members", "in_room", inRoom, "ready", ready, "need", need)
		t.cooldown(quorumCooldown)
		return nil
	}
	return m.start(ctx, t)
}

func (m *Machine) abandonRoom(ctx context.Context, t *turn) error {
	m.journal.ClientWarn(t.c, t.role, "room empty too long, abandoning", "room", t.snap.RoomID, "limit", EmptyRoomLimit)
	t.roster.ClearEmptyRoom(t.c.ID)
	t.cooldown(abandonCooldown)
	if err := m.sessions.Clear(ctx); err != nil {
		return err
	}
	m.journal.Metrics().SessionCleared("empty_room")
	m.journal.Publish(events.Event{Kind: events.KindSessionCleared, Client: t.c.ID, Index: t.c.Index, RoomID: t.snap.RoomID, Message: "empty room"})
	return nil
}

func (m *Machine) switchMode(ctx context.Context, t *turn, target string) error {
	t.cooldown(switchCooldown)
	mode, ok := m.runner.Profile().Mode(target)
	if !ok {
		m.journal.ClientWarn(t.c, t.role, "switch target not in catalog", "mode", target)
		return nil
	}
	m.journal.Client(t.c, t.role, "switching mode", "from", t.snap.Mode, "to", target)
	confirmed, err := m.runner.SwitchMode(ctx, t.c.ID, mode)
	if err != nil {
		return err
	}
	if !confirmed {
		m.journal.ClientWarn(t.c, t.role, "mode switch not confirmed, keeping current mode", "mode", t.snap.Mode)
		return nil
	}

	rec := t.snap.Session
	rec.Mode = target
	rec.Timestamp = utility.UnixSeconds(m.clock.Now())
	saved, err := m.sessions.Save(ctx, rec, t.snap.SessionGen)
	if err != nil {
		return err
	}
	t.snap.SessionGen = saved.Generation
	if err := m.policy.SetActive(ctx, target); err != nil {
		return err
	}
	m.journal.Publish(events.Event{Kind: events.KindModeSwitched, Client: t.c.ID, Index: t.c.Index, RoomID: rec.RoomID, Mode: target})
	return nil
}

func (m *Machine) start(ctx context.Context, t *turn) error {
	clicked, err := m.runner.StartMatch(ctx, t.c.ID)
	if err != nil {
		return err
	}
	if !clicked {
		m.journal.Client(t.c, t.role, "start control not visible")
		t.cooldown(quorumCooldown)
		return nil
	}

	now := m.clock.Now()
	t.roster.StampMatchStart(now)
	t.roster.ClearEmptyRoom(t.c.ID)
	t.cooldown(startCooldown)

	mode, completed, err := m.policy.ReportMatchFinished(ctx)
	if err != nil {
		m.journal.ClientWarn(t.c, t.role, "progress not saved", "err", err)
	}
	members := append([]party.ClientID{t.c.ID}, t.snap.RoomMembers...)
	m.journal.Logger().Info("match started",
		"client", t.c.Index, "room", t.snap.RoomID, "mode", mode, "completed", completed, "members", len(members))
	m.journal.Metrics().MatchStarted(mode)
	m.journal.Publish(events.Event{
		Kind:      events.KindMatchStarted,
		At:        now,
		Client:    t.c.ID,
		Index:     t.c.Index,
		RoomID:    t.snap.RoomID,
		Mode:      mode,
		Members:   members,
		Completed: completed,
	})
	return nil
}
