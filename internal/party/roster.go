package party

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Roster holds the party's clients in ordinal order together with the
// bookkeeping shared across clients: the return-to-room barrier and the
// leader's empty-room timers. The orchestrator loop is the only writer of
// client fields.
type Roster struct {
	mu      sync.Mutex
	clients []*Client
	byID    map[ClientID]*Client

	returned   map[ClientID]struct{}
	waiting    bool
	emptySince map[ClientID]time.Time
}

func NewRoster() *Roster {
	return &Roster{
		byID:       make(map[ClientID]*Client),
		returned:   make(map[ClientID]struct{}),
		emptySince: make(map[ClientID]time.Time),
	}
}

func (r *Roster) Add(id ClientID, index int, acct Account) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return nil, fmt.Errorf("client %d already in roster", id)
	}
	c := &Client{ID: id, Index: index, Account: acct, State: StateUnknown}
	r.clients = append(r.clients, c)
	sort.SliceStable(r.clients, func(i, j int) bool { return r.clients[i].Index < r.clients[j].Index })
	r.byID[id] = c
	return c, nil
}

func (r *Roster) Get(id ClientID) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// List returns the clients ordered by index.
func (r *Roster) List() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]*Client, len(r.clients))
	copy(list, r.clients)
	return list
}

func (r *Roster) IDs() []ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ClientID, len(r.clients))
	for i, c := range r.clients {
		ids[i] = c.ID
	}
	return ids
}

func (r *Roster) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Roster) AllInState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) == 0 {
		return false
	}
	for _, c := range r.clients {
		if c.State != s {
			return false
		}
	}
	return true
}

func (r *Roster) AnyMatchStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.InMatch() {
			return true
		}
	}
	return false
}

// StampMatchStart records t as the start of a match for every client and
// discards any previous barrier progress.
func (r *Roster) StampMatchStart(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.MatchStartedAt = t
	}
	r.returned = make(map[ClientID]struct{})
	r.waiting = false
}

// FirstInState returns the lowest-index client currently in s.
func (r *Roster) FirstInState(s State) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.State == s {
			return c
		}
	}
	return nil
}

// MarkReturned records that id is back in the room after a match. Once the
// whole party has returned, every match-start timestamp and the barrier set
// are cleared together and released is true.
func (r *Roster) MarkReturned(id ClientID) (arrived, total int, released bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return len(r.returned), len(r.clients), false
	}
	r.returned[id] = struct{}{}
	arrived, total = len(r.returned), len(r.clients)
	if arrived < total {
		r.waiting = true
		return arrived, total, false
	}
	for _, c := range r.clients {
		c.MatchStartedAt = time.Time{}
	}
	r.returned = make(map[ClientID]struct{})
	r.waiting = false
	return arrived, total, true
}

// Waiting reports whether part of the party is held at the barrier.
func (r *Roster) Waiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

func (r *Roster) Returned() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.returned)
}

// EmptyRoomSince starts, or continues, the empty-room timer for leader and
// returns when it started.
func (r *Roster) EmptyRoomSince(leader ClientID, now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.emptySince[leader]
	if !ok {
		r.emptySince[leader] = now
		return now
	}
	return t
}

func (r *Roster) ClearEmptyRoom(leader ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.emptySince, leader)
}

// ResetAll puts every client back to UNKNOWN and forgets all shared
// bookkeeping.
func (r *Roster) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.reset()
	}
	r.returned = make(map[ClientID]struct{})
	r.waiting = false
	r.emptySince = make(map[ClientID]time.Time)
}
