package vision_test

import (
	"context"
	"errors"
	"partysync/internal/party"
	"partysync/internal/vision"
	"partysync/internal/vision/visiontest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type hangingPort struct {
	vision.Port
	release chan struct{}
}

func (h hangingPort) Probe(context.Context, party.ClientID, vision.Template) (vision.Match, error) {
	<-h.release
	return vision.Match{Matched: true}, nil
}

func TestGuard_ProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	g := vision.NewGuard(hangingPort{release: release}, 20*time.Millisecond, time.Second)

	start := time.Now()
	m, err := g.Probe(context.Background(), 1, vision.Template{Image: "x.png"})
	if !errors.Is(err, vision.ErrTimeout) {
		t.Fatalf("Probe() error = %v, want ErrTimeout", err)
	}
	if m.Matched {
		t.Error("timed-out probe reported a match")
	}
	if time.Since(start) > time.Second {
		t.Error("Probe() did not return at the deadline")
	}
}

func TestGuard_PassesThrough(t *testing.T) {
	fake := visiontest.New()
	fake.ShowAt(1, "start.png", vision.Point{X: 10, Y: 20})
	g := vision.NewGuard(fake, time.Second, time.Second)
	ctx := context.Background()

	m, err := g.Probe(ctx, 1, vision.Template{Image: "start.png"})
	if err != nil || !m.Matched || m.Location.X != 10 {
		t.Fatalf("Probe() = %+v, %v", m, err)
	}
	if err := g.Click(ctx, 1, vision.Point{X: 5, Y: 6}); err != nil {
		t.Fatalf("Click() error: %v", err)
	}
	if err := g.PressKey(ctx, 1, vision.KeySpace); err != nil {
		t.Fatalf("PressKey() error: %v", err)
	}
	if got := len(fake.ActionsFor(1)); got != 2 {
		t.Errorf("recorded %d actions, want 2", got)
	}
}

type countingPort struct {
	visiontest.Port
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (c *countingPort) PressKey(ctx context.Context, id party.ClientID, k vision.Key) error {
	n := c.active.Add(1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	c.active.Add(-1)
	return nil
}

func TestGuard_SerializesPerClient(t *testing.T) {
	cp := &countingPort{}
	g := vision.NewGuard(cp, time.Second, time.Second)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.PressKey(context.Background(), 7, vision.KeySpace)
		}()
	}
	wg.Wait()

	if got := cp.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent actions on one client = %d, want 1", got)
	}
}

type stuckKeyPort struct {
	visiontest.Port
	release chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
}

func (s *stuckKeyPort) PressKey(ctx context.Context, id party.ClientID, k vision.Key) error {
	s.calls.Add(1)
	if n := s.active.Add(1); n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}
	defer s.active.Add(-1)
	<-s.release
	return nil
}

func TestGuard_AbandonedActionHoldsClient(t *testing.T) {
	sp := &stuckKeyPort{release: make(chan struct{})}
	g := vision.NewGuard(sp, time.Second, 20*time.Millisecond)
	ctx := context.Background()

	if err := g.PressKey(ctx, 3, vision.KeySpace); !errors.Is(err, vision.ErrTimeout) {
		t.Fatalf("first PressKey() error = %v, want ErrTimeout", err)
	}
	if err := g.PressKey(ctx, 3, vision.KeySpace); !errors.Is(err, vision.ErrTimeout) {
		t.Errorf("second PressKey() error = %v, want ErrTimeout while the first is stuck", err)
	}
	if got := sp.calls.Load(); got != 1 {
		t.Errorf("port saw %d calls while the first was stuck, want 1", got)
	}

	close(sp.release)
	deadline := time.Now().Add(time.Second)
	for sp.active.Load() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := g.PressKey(ctx, 3, vision.KeySpace); err != nil {
		t.Errorf("PressKey() after release error: %v", err)
	}
	if got := sp.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent actions on one client = %d, want 1", got)
	}
}
