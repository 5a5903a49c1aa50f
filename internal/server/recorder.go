package server

import (
	"context"
	"log/slog"
	"partysync/internal/db"
	"partysync/internal/events"
	"partysync/internal/party"
	"time"
)

type matchWriter interface {
	RecordMatch(ctx context.Context, m db.MatchRecord) (string, error)
}

// matchRecorder buffers match_started events and writes them to the history
// every flush interval, and once more when ctx ends.
func matchRecorder(ctx context.Context, w matchWriter, runID string, sub <-chan events.Event, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	batch := make([]db.MatchRecord, 0, 16)
	flush := func(ctx context.Context) {
		for i, m := range batch {
			if _, err := w.RecordMatch(ctx, m); err != nil {
				logger.Error("record match", "err", err, "pending", len(batch)-i)
				// Keep what is left for the next flush.
				batch = append(batch[:0], batch[i:]...)
				return
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				flush(fctx)
				cancel()
			}
			return
		case ev, ok := <-sub:
			if !ok {
				flush(ctx)
				return
			}
			if ev.Kind != events.KindMatchStarted {
				continue
			}
			batch = append(batch, db.MatchRecord{
				RunID:     runID,
				RoomID:    ev.RoomID,
				Mode:      ev.Mode,
				Leader:    ev.Client,
				Members:   memberIDs(ev),
				Completed: ev.Completed,
				StartedAt: ev.At,
			})
		case <-ticker.C:
			if len(batch) > 0 {
				flush(ctx)
			}
		}
	}
}

// memberIDs drops the leader, who is always listed first.
func memberIDs(ev events.Event) []party.ClientID {
	out := make([]party.ClientID, 0, len(ev.Members))
	for _, id := range ev.Members {
		if id != ev.Client {
			out = append(out, id)
		}
	}
	return out
}
