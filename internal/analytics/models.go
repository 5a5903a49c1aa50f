package analytics

import "time"

// DayModeStats summarizes the matches one mode started on one calendar day.
type DayModeStats struct {
	Day        string    `json:"day"`
	Mode       string    `json:"mode"`
	Matches    int       `json:"matches"`
	FirstStart time.Time `json:"first_start"`
	LastStart  time.Time `json:"last_start"`
	AvgGapSecs float64   `json:"avg_gap_secs"` // mean time between consecutive starts
	Players    int       `json:"players"`      // distinct clients seen in those matches
}

// ModeReport joins today's live progress with what the history recorded.
type ModeReport struct {
	Mode      string  `json:"mode"`
	Name      string  `json:"name"`
	Completed int     `json:"completed"`
	Target    int     `json:"target"`
	Active    bool    `json:"active"`
	Recorded  int     `json:"recorded"`
	AvgGap    float64 `json:"avg_gap_secs"`
	Remaining int     `json:"remaining"`
}

type Report struct {
	Day     string         `json:"day"`
	Modes   []ModeReport   `json:"modes"`
	History []DayModeStats `json:"history,omitempty"`
}
