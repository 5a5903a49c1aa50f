package party

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRoster(t *testing.T, n int) *Roster {
	t.Helper()
	r := NewRoster()
	for i := n; i >= 1; i-- {
		if _, err := r.Add(ClientID(100+i), i, Account{}); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	return r
}

func TestRoster_ListOrderedByIndex(t *testing.T) {
	r := newTestRoster(t, 3)
	list := r.List()
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(list))
	}
	for i, c := range list {
		if c.Index != i+1 {
			t.Errorf("List()[%d].Index = %d, want %d", i, c.Index, i+1)
		}
		if c.State != StateUnknown {
			t.Errorf("initial state = %q, want %q", c.State, StateUnknown)
		}
	}
}

func TestRoster_AddDuplicate(t *testing.T) {
	r := newTestRoster(t, 1)
	if _, err := r.Add(101, 2, Account{}); err == nil {
		t.Error("Add() with duplicate id should fail")
	}
}

func TestRoster_BarrierMonotonicThenReset(t *testing.T) {
	r := newTestRoster(t, 3)
	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	r.StampMatchStart(start)

	prev := 0
	ids := r.IDs()
	for i, id := range ids[:2] {
		arrived, total, released := r.MarkReturned(id)
		if released {
			t.Fatalf("released after %d of 3", i+1)
		}
		if arrived < prev {
			t.Errorf("barrier shrank from %d to %d", prev, arrived)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
		prev = arrived
		if !r.Waiting() {
			t.Error("Waiting() = false while barrier partially filled")
		}
	}

	// A repeat arrival does not grow the barrier.
	if arrived, _, _ := r.MarkReturned(ids[0]); arrived != 2 {
		t.Errorf("arrived after repeat = %d, want 2", arrived)
	}

	arrived, _, released := r.MarkReturned(ids[2])
	if !released || arrived != 3 {
		t.Fatalf("MarkReturned(last) = (%d, released=%v), want (3, true)", arrived, released)
	}
	if r.Returned() != 0 {
		t.Errorf("Returned() = %d after release, want 0", r.Returned())
	}
	if r.Waiting() {
		t.Error("Waiting() = true after release")
	}
	if r.AnyMatchStarted() {
		t.Error("match-start timestamps should be cleared with the barrier")
	}
}

func TestRoster_StampMatchStartClearsBarrier(t *testing.T) {
	r := newTestRoster(t, 2)
	r.MarkReturned(101)
	r.StampMatchStart(time.Now())
	if r.Returned() != 0 || r.Waiting() {
		t.Error("new match should discard barrier progress")
	}
	for _, c := range r.List() {
		if !c.InMatch() {
			t.Errorf("client %d has no match start", c.Index)
		}
	}
}

func TestRoster_FirstInState(t *testing.T) {
	r := newTestRoster(t, 3)
	list := r.List()
	list[2].State = StateClaiming
	list[1].State = StateClaiming

	got := r.FirstInState(StateClaiming)
	if got == nil || got.Index != 2 {
		t.Fatalf("FirstInState() = %+v, want index 2", got)
	}
	if r.FirstInState(StateFinished) != nil {
		t.Error("FirstInState(FINISHED) should be nil")
	}
}

func TestRoster_EmptyRoomTimer(t *testing.T) {
	r := newTestRoster(t, 2)
	t0 := time.Now()
	if got := r.EmptyRoomSince(101, t0); !got.Equal(t0) {
		t.Errorf("EmptyRoomSince() = %v, want %v", got, t0)
	}
	if got := r.EmptyRoomSince(101, t0.Add(5*time.Second)); !got.Equal(t0) {
		t.Errorf("timer restarted: got %v, want %v", got, t0)
	}
	r.ClearEmptyRoom(101)
	later := t0.Add(10 * time.Second)
	if got := r.EmptyRoomSince(101, later); !got.Equal(later) {
		t.Errorf("EmptyRoomSince() after clear = %v, want %v", got, later)
	}
}

func TestRoster_ResetAll(t *testing.T) {
	r := newTestRoster(t, 2)
	for _, c := range r.List() {
		c.State = StateFinished
		c.LoginStep = 3
		c.Retries = 2
		c.CooldownUntil = time.Now().Add(time.Hour)
	}
	r.StampMatchStart(time.Now())
	r.MarkReturned(101)
	r.EmptyRoomSince(101, time.Now())

	r.ResetAll()

	for _, c := range r.List() {
		if c.State != StateUnknown || c.LoginStep != 0 || c.Retries != 0 || c.InMatch() {
			t.Errorf("client %d not reset: %+v", c.Index, c)
		}
		if !c.Ready(time.Now()) {
			t.Errorf("client %d still cooling down", c.Index)
		}
	}
	if r.Returned() != 0 || r.Waiting() {
		t.Error("barrier not reset")
	}
}

func TestRoster_AllInState(t *testing.T) {
	r := newTestRoster(t, 2)
	if r.AllInState(StateFinished) {
		t.Error("AllInState(FINISHED) = true on fresh roster")
	}
	for _, c := range r.List() {
		c.State = StateFinished
	}
	if !r.AllInState(StateFinished) {
		t.Error("AllInState(FINISHED) = false")
	}
	if NewRoster().AllInState(StateFinished) {
		t.Error("empty roster should not count as all finished")
	}
}

func TestLoadRoster(t *testing.T) {
	data := `[
		// launcher output
		{"index": 2, "hwnd": 5002, "username": "bob", "password": "pw2"},
		{"index": 1, "hwnd": 5001, "username": "alice", "password": "pw1"},
	]`
	path := filepath.Join(t.TempDir(), "roster.json")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("LoadRoster() error: %v", err)
	}
	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != 5001 || list[0].Account.Username != "alice" {
		t.Errorf("first client = %+v, want hwnd 5001 alice", list[0])
	}
}

func TestParseRoster_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":     `[]`,
		"no hwnd":   `[{"index": 1}]`,
		"duplicate": `[{"index": 1, "hwnd": 7}, {"index": 2, "hwnd": 7}]`,
		"garbage":   `{`,
	}
	for name, data := range cases {
		if _, err := ParseRoster([]byte(data)); err == nil {
			t.Errorf("%s: ParseRoster() error = nil", name)
		}
	}
}
