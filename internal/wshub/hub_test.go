package wshub

import (
	"context"
	"encoding/json"
	"partysync/internal/events"
	"partysync/internal/logging"
	"testing"
	"time"
)

func TestRegisterAndBroadcast(t *testing.T) {
	h := NewHub(logging.Discard())

	c1 := &Client{ID: "o1", Send: make(chan []byte, 16)}
	c2 := &Client{ID: "o2", Send: make(chan []byte, 16)}
	h.Register(c1)
	h.Register(c2)
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", h.Count())
	}

	h.Broadcast(ServerMessage{Type: "event", Event: &events.Event{Kind: events.KindMatchStarted, Mode: "mode_item"}})

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.Send:
			var got ServerMessage
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "event" || got.Event == nil || got.Event.Kind != events.KindMatchStarted || got.Event.Mode != "mode_item" {
				t.Fatalf("unexpected message: %+v", got)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("%s did not receive message", c.ID)
		}
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub(logging.Discard())
	c1 := &Client{ID: "o1", Send: make(chan []byte, 16)}
	h.Register(c1)

	h.Unregister("o1")
	h.Unregister("o1")

	if _, ok := <-c1.Send; ok {
		t.Fatal("c1.Send should be closed")
	}
	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := NewHub(logging.Discard())
	slow := &Client{ID: "slow", Send: make(chan []byte, 1)}
	h.Register(slow)

	done := make(chan struct{})
	go func() {
		h.Broadcast(ServerMessage{Type: "a"})
		h.Broadcast(ServerMessage{Type: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client")
	}
	if len(slow.Send) != 1 {
		t.Errorf("queued = %d, want 1", len(slow.Send))
	}
}

func TestSendTo(t *testing.T) {
	h := NewHub(logging.Discard())
	c1 := &Client{ID: "o1", Send: make(chan []byte, 1)}
	c2 := &Client{ID: "o2", Send: make(chan []byte, 1)}
	h.Register(c1)
	h.Register(c2)

	if !h.SendTo("o2", ServerMessage{Type: "status"}) {
		t.Fatal("SendTo() = false")
	}
	if len(c1.Send) != 0 || len(c2.Send) != 1 {
		t.Errorf("queues = %d/%d, want 0/1", len(c1.Send), len(c2.Send))
	}
	if h.SendTo("missing", ServerMessage{Type: "status"}) {
		t.Error("SendTo() to an unknown id = true")
	}
}

func TestForward(t *testing.T) {
	h := NewHub(logging.Discard())
	c1 := &Client{ID: "o1", Send: make(chan []byte, 4)}
	h.Register(c1)

	sub := make(chan events.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Forward(ctx, sub)

	sub <- events.Event{Kind: events.KindPaused}
	select {
	case data := <-c1.Send:
		var got ServerMessage
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got.Event == nil || got.Event.Kind != events.KindPaused {
			t.Errorf("forwarded = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}
