// Package session persists the party's shared room record: which room the
// party is gathering in, who leads it and which mode it runs.
package session

import (
	"context"
	"errors"
	"partysync/internal/party"
	"partysync/internal/utility"
	"time"
)

// StaleAfter is how long a record stays authoritative after its last write.
const StaleAfter = 600 * time.Second

// UnknownRoom marks a room the leader created but could not read back.
const UnknownRoom = "unknown"

var (
	ErrNotFound = errors.New("no session record")
	ErrConflict = errors.New("session record changed since it was read")
)

type Record struct {
	RoomID     string         `json:"room_id"`
	LeaderID   party.ClientID `json:"host_client_id"`
	Mode       string         `json:"mode"`
	Timestamp  float64        `json:"timestamp"`
	Generation uint64         `json:"generation"`
}

func (r Record) WrittenAt() time.Time { return utility.FromUnixSeconds(r.Timestamp) }

func (r Record) Stale(now time.Time) bool {
	return now.Sub(r.WrittenAt()) > StaleAfter
}

// Joinable reports whether members can use RoomID to join.
func (r Record) Joinable() bool {
	return r.RoomID != "" && r.RoomID != UnknownRoom
}

// Store is the narrow persistence contract for the record. Save succeeds only
// when the stored generation still equals expected (0 when nothing is
// stored); the written record carries generation expected+1 and a timestamp
// no older than the one it replaces.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record, expected uint64) (Record, error)
	Clear(ctx context.Context) error
}

// Current loads the record and applies the staleness window. The raw
// generation is returned even when the record is stale so callers can write
// over it.
func Current(ctx context.Context, s Store, now time.Time) (rec Record, live bool, err error) {
	rec, err = s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, !rec.Stale(now), nil
}

// Next builds the record that replaces prev, enforcing the generation check
// shared by every Store implementation.
func Next(prev *Record, rec Record, expected uint64) (Record, error) {
	var have uint64
	if prev != nil {
		have = prev.Generation
	}
	if have != expected {
		return Record{}, ErrConflict
	}
	rec.Generation = expected + 1
	if prev != nil && rec.Timestamp < prev.Timestamp {
		rec.Timestamp = prev.Timestamp
	}
	return rec, nil
}
