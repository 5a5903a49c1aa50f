package journal

import (
	"bytes"
	"log/slog"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/party"
	"strings"
	"testing"
	"time"
)

func newTestJournal() (*Journal, *bytes.Buffer, *events.Bus) {
	var buf bytes.Buffer
	bus := events.NewBus()
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return New(logger, bus, nil, clock.NewFake(time.Unix(1_800_000_000, 0))), &buf, bus
}

func TestJournal_ClientDeduplicates(t *testing.T) {
	j, buf, _ := newTestJournal()
	c := &party.Client{ID: 1, Index: 1, State: party.StateRoom}

	for range 5 {
		j.Client(c, RoleMember, "waiting for leader")
	}
	if n := strings.Count(buf.String(), "waiting for leader"); n != 1 {
		t.Errorf("line logged %d times, want 1", n)
	}
	if !strings.Contains(buf.String(), "client=1") || !strings.Contains(buf.String(), "role=member") {
		t.Errorf("line missing client/role: %q", buf.String())
	}

	j.Client(c, RoleMember, "clicked ready")
	j.Client(c, RoleMember, "waiting for leader")
	if n := strings.Count(buf.String(), "waiting for leader"); n != 2 {
		t.Errorf("line logged %d times after change, want 2", n)
	}
}

func TestJournal_Transition(t *testing.T) {
	j, buf, bus := newTestJournal()
	c := &party.Client{ID: 7, Index: 2, State: party.StateRoom}

	if !j.Transition(c, RoleLeader, party.StateInGame, "room vanished") {
		t.Fatal("Transition() = false for a real change")
	}
	if c.State != party.StateInGame {
		t.Errorf("State = %q, want INGAME", c.State)
	}
	if j.Transition(c, RoleLeader, party.StateInGame, "again") {
		t.Error("Transition() to the same state should report false")
	}

	select {
	case ev := <-bus.Events:
		if ev.Kind != events.KindTransition || ev.From != "ROOM" || ev.To != "INGAME" || ev.At.IsZero() {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no transition event")
	}
	if len(bus.Events) != 0 {
		t.Error("no-op transition published an event")
	}
	if !strings.Contains(buf.String(), "from=ROOM to=INGAME") {
		t.Errorf("log = %q", buf.String())
	}
}
