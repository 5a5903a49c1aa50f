package analytics

import (
	"context"
	"fmt"
	"partysync/internal/db"
	"partysync/internal/modes"
	"time"
)

type Queries struct {
	DB  *db.DB
	Loc *time.Location
}

func NewQueries(database *db.DB) *Queries {
	return &Queries{DB: database, Loc: time.Local}
}

// DailyModeStats summarizes the history of the last days calendar days,
// today included.
func (q *Queries) DailyModeStats(ctx context.Context, now time.Time, days int) ([]DayModeStats, error) {
	if days < 1 {
		days = 1
	}
	local := now.In(q.Loc)
	since := time.Date(local.Year(), local.Month(), local.Day()-(days-1), 0, 0, 0, 0, q.Loc)
	matches, err := q.DB.MatchesSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("getting daily stats: %w", err)
	}
	return Summarize(matches, q.Loc), nil
}

// Report joins today's progress with the recorded history. A nil receiver
// reports progress alone, which is what runs without a database get.
func (q *Queries) Report(ctx context.Context, now time.Time, days int, progress []modes.ModeProgress) (Report, error) {
	if q == nil || q.DB == nil {
		return Merge(now.Format(dayLayout), progress, nil), nil
	}
	history, err := q.DailyModeStats(ctx, now, days)
	if err != nil {
		return Report{}, err
	}
	return Merge(now.In(q.Loc).Format(dayLayout), progress, history), nil
}
