package events

import (
	"partysync/internal/party"
	"time"
)

type Kind string

const (
	KindTransition      Kind = "transition"
	KindLeaderChanged   Kind = "leader_changed"
	KindRoomRecorded    Kind = "room_recorded"
	KindSessionCleared  Kind = "session_cleared"
	KindModeSwitched    Kind = "mode_switched"
	KindMatchStarted    Kind = "match_started"
	KindBarrierReleased Kind = "barrier_released"
	KindRewardsClaimed  Kind = "rewards_claimed"
	KindInterrupt       Kind = "interrupt_dismissed"
	KindPaused          Kind = "paused"
	KindResumed         Kind = "resumed"
	KindReset           Kind = "reset"
	KindFinished        Kind = "finished"
)

// Event is something the coordinator did or observed that outside observers
// may want to follow.
type Event struct {
	Kind      Kind             `json:"kind"`
	At        time.Time        `json:"at"`
	Client    party.ClientID   `json:"client,omitempty"`
	Index     int              `json:"index,omitempty"`
	From      string           `json:"from,omitempty"`
	To        string           `json:"to,omitempty"`
	RoomID    string           `json:"room_id,omitempty"`
	Mode      string           `json:"mode,omitempty"`
	Members   []party.ClientID `json:"members,omitempty"`
	Completed int              `json:"completed,omitempty"`
	Message   string           `json:"message,omitempty"`
}

type Bus struct {
	Events chan Event
}

func NewBus() *Bus {
	return &Bus{
		Events: make(chan Event, 64),
	}
}

// Publish hands ev to the bus without blocking; when nobody drains the bus
// fast enough the event is dropped. A nil bus discards everything.
func (b *Bus) Publish(ev Event) bool {
	if b == nil {
		return false
	}
	select {
	case b.Events <- ev:
		return true
	default:
		return false
	}
}
