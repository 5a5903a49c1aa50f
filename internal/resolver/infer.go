package resolver

import (
	"partysync/internal/party"
	"time"
)

const (
	// HardCeiling is the longest a match may run before the client is
	// considered lost.
	HardCeiling = 10 * time.Minute
	// LaunchGrace is how long clients may linger on the room screen after
	// the start click before that counts as having returned.
	LaunchGrace = 15 * time.Second
)

// Observation is what one tick saw on a client's screen.
type Observation struct {
	InRoom  bool
	InLobby bool
}

type Inference struct {
	State party.State
	// CheckLogin asks the caller to probe the login flow and choose between
	// LOGIN and UNKNOWN.
	CheckLogin bool
	// MatchStarted asks the caller to record a match-start time.
	MatchStarted bool
	// MatchLost asks the caller to forget the match-start time.
	MatchLost bool
	// Returned marks a client back in the room after a match.
	Returned bool
	Reason   string
}

// Infer decides a client's state from its previous state, this tick's
// observation and when its current match started. Rules are applied in
// order; the first that matches wins.
func Infer(prev party.State, obs Observation, startedAt, now time.Time) Inference {
	inMatch := !startedAt.IsZero()
	switch {
	case prev == party.StateFinished:
		return Inference{State: party.StateFinished, Reason: "finished for the day"}

	case prev == party.StateInGame && inMatch && now.Sub(startedAt) > HardCeiling:
		return Inference{State: party.StateUnknown, MatchLost: true, Reason: "match exceeded hard ceiling"}

	case obs.InRoom:
		returned := prev == party.StateInGame || (inMatch && now.Sub(startedAt) > LaunchGrace)
		return Inference{State: party.StateRoom, Returned: returned, Reason: "room observed"}

	case obs.InLobby:
		if prev == party.StateClaiming {
			return Inference{State: prev, Reason: "claiming from lobby"}
		}
		return Inference{State: party.StateLobby, Reason: "lobby observed"}

	case prev == party.StateRoom:
		return Inference{State: party.StateInGame, MatchStarted: true, Reason: "room vanished"}

	case prev == party.StateInGame:
		return Inference{State: party.StateInGame, Reason: "match in progress"}

	default:
		return Inference{State: party.StateUnknown, CheckLogin: true, Reason: "no room or lobby"}
	}
}
