package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"partysync/internal/party"
	"partysync/internal/session"
)

// SessionStore keeps the shared room record in the single-row
// session_records table. Save locks the row so the generation check and the
// write happen atomically across processes.
type SessionStore struct {
	db *DB
}

func NewSessionStore(d *DB) *SessionStore {
	return &SessionStore{db: d}
}

var _ session.Store = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context) (session.Record, error) {
	rec, err := scanRecord(s.db.conn.QueryRowContext(ctx, `
		SELECT room_id, leader_client, mode, written_at, generation
		FROM session_records WHERE id = 1
	`))
	if err != nil {
		return session.Record{}, err
	}
	return *rec, nil
}

func (s *SessionStore) Save(ctx context.Context, rec session.Record, expected uint64) (session.Record, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return session.Record{}, fmt.Errorf("beginning session write: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT room_id, leader_client, mode, written_at, generation
		FROM session_records WHERE id = 1
		FOR UPDATE
	`))
	if errors.Is(err, session.ErrNotFound) {
		prev = nil
	} else if err != nil {
		return session.Record{}, err
	}

	out, err := session.Next(prev, rec, expected)
	if err != nil {
		return session.Record{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_records (id, room_id, leader_client, mode, written_at, generation)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET room_id = $1, leader_client = $2, mode = $3, written_at = $4, generation = $5
	`, out.RoomID, int64(out.LeaderID), out.Mode, out.Timestamp, int64(out.Generation))
	if err != nil {
		return session.Record{}, fmt.Errorf("writing session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Record{}, fmt.Errorf("committing session: %w", err)
	}
	return out, nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM session_records WHERE id = 1`); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

func scanRecord(row *sql.Row) (*session.Record, error) {
	var (
		rec    session.Record
		leader int64
		gen    int64
	)
	err := row.Scan(&rec.RoomID, &leader, &rec.Mode, &rec.Timestamp, &gen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	rec.LeaderID = party.ClientID(leader)
	rec.Generation = uint64(gen)
	return &rec, nil
}
