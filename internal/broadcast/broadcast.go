package broadcast

import (
	"partysync/internal/events"
	"sync"
)

// filter selects the kinds a subscriber wants; nil means every kind.
type filter map[events.Kind]bool

func (f filter) wants(k events.Kind) bool { return f == nil || f[k] }

// Broadcaster fans every event from the bus out to its subscribers. Slow
// subscribers miss events rather than stalling the others.
type Broadcaster struct {
	Mu      sync.Mutex
	Clients map[chan events.Event]filter
}

func NewBroadcaster(bus *events.Bus) *Broadcaster {
	b := &Broadcaster{
		Clients: make(map[chan events.Event]filter),
	}
	go func() {
		for ev := range bus.Events {
			b.Broadcast(ev)
		}
	}()
	return b
}

// Subscribe returns a channel receiving events of the given kinds, or of
// every kind when none are named.
func (b *Broadcaster) Subscribe(kinds ...events.Kind) chan events.Event {
	var f filter
	if len(kinds) > 0 {
		f = make(filter, len(kinds))
		for _, k := range kinds {
			f[k] = true
		}
	}
	ch := make(chan events.Event, 32)
	b.Mu.Lock()
	b.Clients[ch] = f
	b.Mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan events.Event) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	if _, ok := b.Clients[ch]; !ok {
		return
	}
	delete(b.Clients, ch)
	close(ch)
}

func (b *Broadcaster) Broadcast(ev events.Event) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	for ch, f := range b.Clients {
		if !f.wants(ev.Kind) {
			continue
		}
		select {
		case ch <- ev:
		default:
			// skip clients with full data channels
		}
	}
}
