package analytics

import (
	"partysync/internal/db"
	"partysync/internal/modes"
	"partysync/internal/party"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// Summarize groups matches by local calendar day and mode. The result is
// ordered by day, then mode.
func Summarize(matches []db.MatchRecord, loc *time.Location) []DayModeStats {
	type key struct{ day, mode string }
	groups := make(map[key][]db.MatchRecord)
	for _, m := range matches {
		k := key{m.StartedAt.In(loc).Format(dayLayout), m.Mode}
		groups[k] = append(groups[k], m)
	}

	out := make([]DayModeStats, 0, len(groups))
	for k, ms := range groups {
		sort.Slice(ms, func(i, j int) bool { return ms[i].StartedAt.Before(ms[j].StartedAt) })
		players := make(map[party.ClientID]bool)
		for _, m := range ms {
			players[m.Leader] = true
			for _, id := range m.Members {
				players[id] = true
			}
		}
		s := DayModeStats{
			Day:        k.day,
			Mode:       k.mode,
			Matches:    len(ms),
			FirstStart: ms[0].StartedAt,
			LastStart:  ms[len(ms)-1].StartedAt,
			Players:    len(players),
		}
		if len(ms) > 1 {
			s.AvgGapSecs = s.LastStart.Sub(s.FirstStart).Seconds() / float64(len(ms)-1)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Mode < out[j].Mode
	})
	return out
}

// Merge builds the per-mode report for day from live progress and the
// summarized history. Modes only present in the history are appended.
func Merge(day string, progress []modes.ModeProgress, history []DayModeStats) Report {
	today := make(map[string]DayModeStats)
	for _, s := range history {
		if s.Day == day {
			today[s.Mode] = s
		}
	}

	r := Report{Day: day, History: history}
	seen := make(map[string]bool)
	for _, p := range progress {
		mr := ModeReport{
			Mode:      p.ID,
			Name:      p.Name,
			Completed: p.Completed,
			Target:    p.Target,
			Active:    p.Active,
			Remaining: max(p.Target-p.Completed, 0),
		}
		if s, ok := today[p.ID]; ok {
			mr.Recorded = s.Matches
			mr.AvgGap = s.AvgGapSecs
		}
		seen[p.ID] = true
		r.Modes = append(r.Modes, mr)
	}
	extra := make([]string, 0)
	for mode := range today {
		if !seen[mode] {
			extra = append(extra, mode)
		}
	}
	sort.Strings(extra)
	for _, mode := range extra {
		s := today[mode]
		r.Modes = append(r.Modes, ModeReport{Mode: mode, Name: mode, Recorded: s.Matches, AvgGap: s.AvgGapSecs})
	}
	return r
}
