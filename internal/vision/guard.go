package vision

import (
	"context"
	"partysync/internal/party"
	"sync"
	"time"
)

// Guard wraps a Port so that every call is bounded by a timeout and every
// actuation of a given client is serialized, so the interrupt watcher and
// the control loop never interleave keystrokes on one client.
type Guard struct {
	port          Port
	probeTimeout  time.Duration
	actionTimeout time.Duration

	mu    sync.Mutex
	slots map[party.ClientID]chan struct{}
}

func NewGuard(p Port, probeTimeout, actionTimeout time.Duration) *Guard {
	return &Guard{
		port:          p,
		probeTimeout:  probeTimeout,
		actionTimeout: actionTimeout,
		slots:         make(map[party.ClientID]chan struct{}),
	}
}

// slot returns the one-deep semaphore that serializes id's actions.
func (g *Guard) slot(id party.ClientID) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.slots[id]
	if !ok {
		s = make(chan struct{}, 1)
		g.slots[id] = s
	}
	return s
}

// bounded runs fn under a deadline. A call that ignores its context is
// abandoned when the deadline passes.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, deadlineErr(ctx)
	}
}

func (g *Guard) Probe(ctx context.Context, id party.ClientID, t Template) (Match, error) {
	return bounded(ctx, g.probeTimeout, func(ctx context.Context) (Match, error) {
		return g.port.Probe(ctx, id, t)
	})
}

// act runs fn while holding id's slot. An abandoned call keeps the slot until
// it actually returns, so a late keystroke never overlaps the next action;
// waiting for the slot counts against the action deadline.
func (g *Guard) act(ctx context.Context, id party.ClientID, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.actionTimeout)
	defer cancel()

	s := g.slot(id)
	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return deadlineErr(ctx)
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-s }()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return deadlineErr(ctx)
	}
}

func deadlineErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return ctx.Err()
}

func (g *Guard) Click(ctx context.Context, id party.ClientID, p Point) error {
	return g.act(ctx, id, func(ctx context.Context) error { return g.port.Click(ctx, id, p) })
}

func (g *Guard) PressKey(ctx context.Context, id party.ClientID, k Key) error {
	return g.act(ctx, id, func(ctx context.Context) error { return g.port.PressKey(ctx, id, k) })
}

func (g *Guard) TypeText(ctx context.Context, id party.ClientID, at Point, text string) error {
	return g.act(ctx, id, func(ctx context.Context) error { return g.port.TypeText(ctx, id, at, text) })
}

func (g *Guard) SelectAllAndCopy(ctx context.Context, id party.ClientID) error {
	return g.act(ctx, id, func(ctx context.Context) error { return g.port.SelectAllAndCopy(ctx, id) })
}

func (g *Guard) ReadClipboard(ctx context.Context) (string, error) {
	return bounded(ctx, g.actionTimeout, g.port.ReadClipboard)
}

var _ Port = (*Guard)(nil)
