package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"partysync/internal/utility"
	"sync"
)

// FileStore keeps the record as a JSON document, replaced atomically on every
// write.
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
	rec, err := s.read()
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

func (s *FileStore) read() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding session file: %w", err)
	}
	return &rec, nil
}

func (s *FileStore) Save(_ context.Context, rec Record, expected uint64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.read()
	if errors.Is(err, ErrNotFound) {
		prev = nil
	} else if err != nil {
		// An unreadable file is overwritten; it cannot be trusted anyway.
		prev = nil
		expected = 0
	}
	out, err := Next(prev, rec, expected)
	if err != nil {
		return Record{}, err
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("encoding session: %w", err)
	}
	if err := utility.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return Record{}, fmt.Errorf("writing session file: %w", err)
	}
	return out, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}
