package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"partysync/internal/utility"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_SaveIncrementsGeneration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first, err := s.Save(ctx, Record{RoomID: "123", LeaderID: 9, Mode: "mode_item", Timestamp: utility.UnixSeconds(now)}, 0)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if first.Generation != 1 {
		t.Errorf("Generation = %d, want 1", first.Generation)
	}

	second, err := s.Save(ctx, Record{RoomID: "123", LeaderID: 9, Mode: "mode_speed", Timestamp: utility.UnixSeconds(now)}, first.Generation)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if second.Generation != 2 {
		t.Errorf("Generation = %d, want 2", second.Generation)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got != second {
		t.Errorf("Load() = %+v, want %+v", got, second)
	}
}

func TestFileStore_SaveConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, Record{RoomID: "1"}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, Record{RoomID: "2"}, 0); !errors.Is(err, ErrConflict) {
		t.Errorf("Save() with stale generation error = %v, want ErrConflict", err)
	}
	got, _ := s.Load(ctx)
	if got.RoomID != "1" {
		t.Errorf("RoomID = %q after conflict, want %q", got.RoomID, "1")
	}
}

func TestFileStore_TimestampMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	first, _ := s.Save(ctx, Record{RoomID: "1", Timestamp: utility.UnixSeconds(now)}, 0)

	second, err := s.Save(ctx, Record{RoomID: "1", Timestamp: utility.UnixSeconds(now.Add(-time.Minute))}, first.Generation)
	if err != nil {
		t.Fatal(err)
	}
	if second.Timestamp < first.Timestamp {
		t.Errorf("timestamp went backwards: %v < %v", second.Timestamp, first.Timestamp)
	}
}

func TestFileStore_Clear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Save(ctx, Record{RoomID: "1"}, 0)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Clear error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_CorruptFileOverwritten(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := os.WriteFile(s.path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx); err == nil {
		t.Error("Load() of corrupt file should fail")
	}
	rec, err := s.Save(ctx, Record{RoomID: "5"}, 7)
	if err != nil {
		t.Fatalf("Save() over corrupt file error: %v", err)
	}
	if rec.Generation != 1 {
		t.Errorf("Generation = %d, want 1", rec.Generation)
	}
}

func TestCurrent_Staleness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.Local)

	if _, live, err := Current(ctx, s, now); live || err != nil {
		t.Fatalf("Current() on empty store = live %v, err %v", live, err)
	}

	s.Save(ctx, Record{RoomID: "777", LeaderID: 3, Timestamp: utility.UnixSeconds(now.Add(-601 * time.Second))}, 0)
	rec, live, err := Current(ctx, s, now)
	if err != nil {
		t.Fatal(err)
	}
	if live {
		t.Error("record written 601s ago should be stale")
	}
	if rec.Generation != 1 {
		t.Errorf("stale record generation = %d, want 1", rec.Generation)
	}

	s.Save(ctx, Record{RoomID: "777", LeaderID: 3, Timestamp: utility.UnixSeconds(now.Add(-599 * time.Second))}, 1)
	if _, live, _ := Current(ctx, s, now); !live {
		t.Error("record written 599s ago should be live")
	}
}

func TestRecord_Joinable(t *testing.T) {
	cases := map[string]bool{"": false, UnknownRoom: false, "48213": true}
	for room, want := range cases {
		if got := (Record{RoomID: room}).Joinable(); got != want {
			t.Errorf("Joinable(%q) = %v, want %v", room, got, want)
		}
	}
}
