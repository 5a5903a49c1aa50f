package db

import (
	"context"
	"database/sql"
	"fmt"
	"partysync/internal/party"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type MatchRecord struct {
	ID        string
	RunID     string
	RoomID    string
	Mode      string
	Leader    party.ClientID
	Members   []party.ClientID
	Completed int
	StartedAt time.Time
}

// RecordMatch stores one started match and returns its id.
func (d *DB) RecordMatch(ctx context.Context, m MatchRecord) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	members := make([]int64, len(m.Members))
	for i, id := range m.Members {
		members[i] = int64(id)
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO party_matches (id, run_id, room_id, mode, leader_client, members, completed, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.RunID, m.RoomID, m.Mode, int64(m.Leader), pq.Array(members), m.Completed, m.StartedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("recording match: %w", err)
	}
	return m.ID, nil
}

func (d *DB) RecentMatches(ctx context.Context, limit int) ([]MatchRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, run_id, room_id, mode, leader_client, members, completed, started_at
		FROM party_matches
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	return scanMatches(rows)
}

// MatchesSince returns every match started at or after since, oldest first.
func (d *DB) MatchesSince(ctx context.Context, since time.Time) ([]MatchRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, run_id, room_id, mode, leader_client, members, completed, started_at
		FROM party_matches
		WHERE started_at >= $1
		ORDER BY started_at
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]MatchRecord, error) {
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var (
			m       MatchRecord
			leader  int64
			members []int64
		)
		if err := rows.Scan(&m.ID, &m.RunID, &m.RoomID, &m.Mode, &leader, pq.Array(&members), &m.Completed, &m.StartedAt); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Leader = party.ClientID(leader)
		for _, id := range members {
			m.Members = append(m.Members, party.ClientID(id))
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
