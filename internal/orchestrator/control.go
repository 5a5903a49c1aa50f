package orchestrator

import (
	"maps"
	"partysync/internal/party"
	"sync"
)

// Control is the coordinator's pause, stop and reset switchboard. It is safe
// for concurrent use; the control loop polls it once per tick.
type Control struct {
	mu         sync.Mutex
	manual     bool
	override   bool // operator resumed over the outstanding exceptions
	exceptions map[party.ClientID]string
	reset      bool

	stopOnce sync.Once
	stop     chan struct{}
}

func NewControl() *Control {
	return &Control{
		exceptions: make(map[party.ClientID]string),
		stop:       make(chan struct{}),
	}
}

// Paused reports whether the loop should hold: a manual pause is active, or
// at least one client has an outstanding exception the operator has not
// resumed over.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pausedLocked()
}

func (c *Control) pausedLocked() bool {
	return c.manual || (len(c.exceptions) > 0 && !c.override)
}

// Pause holds the loop until Resume.
func (c *Control) Pause() (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauseLocked()
}

func (c *Control) pauseLocked() bool {
	was := c.pausedLocked()
	c.manual, c.override = true, false
	return !was
}

// Resume lifts a manual pause and overrides any outstanding exceptions until
// the next one is reported.
func (c *Control) Resume() (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeLocked()
}

func (c *Control) resumeLocked() bool {
	was := c.pausedLocked()
	c.manual = false
	c.override = len(c.exceptions) > 0
	return was
}

// Toggle resumes a paused loop and pauses a running one.
func (c *Control) Toggle() (paused, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pausedLocked() {
		return false, c.resumeLocked()
	}
	return true, c.pauseLocked()
}

func (c *Control) Manual() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manual
}

// NotifyException records that id needs outside attention. The loop pauses
// until every exception is recovered or the operator resumes.
func (c *Control) NotifyException(id party.ClientID, kind string) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.pausedLocked()
	c.exceptions[id] = kind
	c.override = false
	return !was
}

// NotifyRecovered clears the exception for id. changed is true when that
// lifted the pause.
func (c *Control) NotifyRecovered(id party.ClientID) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.exceptions[id]; !ok {
		return false
	}
	was := c.pausedLocked()
	delete(c.exceptions, id)
	if len(c.exceptions) == 0 {
		c.override = false
	}
	return was && !c.pausedLocked()
}

func (c *Control) Exceptions() map[party.ClientID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.exceptions)
}

// RequestReset asks the loop to reset progress and client state at the start
// of its next tick.
func (c *Control) RequestReset() {
	c.mu.Lock()
	c.reset = true
	c.mu.Unlock()
}

func (c *Control) takeReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.reset
	c.reset = false
	return r
}

// Stop ends the loop. It may be called any number of times.
func (c *Control) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Control) Stopped() <-chan struct{} { return c.stop }
