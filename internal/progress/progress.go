// Package progress persists per-mode match counts for the current day.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"partysync/internal/utility"
	"sync"
	"time"
)

var ErrNotFound = errors.New("no progress record")

type Record struct {
	Timestamp float64        `json:"timestamp"`
	LastMode  string         `json:"last_mode"`
	Counts    map[string]int `json:"counts"`
}

func (r Record) WrittenAt() time.Time { return utility.FromUnixSeconds(r.Timestamp) }

// SameDay reports whether the record was written on now's calendar day in
// now's location.
func (r Record) SameDay(now time.Time) bool {
	w := r.WrittenAt().In(now.Location())
	y1, m1, d1 := w.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (r Record) Clone() Record {
	r.Counts = maps.Clone(r.Counts)
	if r.Counts == nil {
		r.Counts = make(map[string]int)
	}
	return r
}

type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
}

type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading progress file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding progress file: %w", err)
	}
	return rec.Clone(), nil
}

func (s *FileStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}
	if err := utility.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing progress file: %w", err)
	}
	return nil
}
