// Package journal records what happens to each client: log lines tagged with
// the client's index and role, state transitions, and the events and metrics
// derived from them.
package journal

import (
	"fmt"
	"log/slog"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/logging"
	"partysync/internal/metrics"
	"partysync/internal/party"
)

type Role string

const (
	RoleLeader    Role = "leader"
	RoleCandidate Role = "candidate"
	RoleMember    Role = "member"
)

type Journal struct {
	logger  *slog.Logger
	dedup   *logging.Dedup
	bus     *events.Bus
	metrics *metrics.Metrics
	clock   clock.Clock
}

func New(logger *slog.Logger, bus *events.Bus, m *metrics.Metrics, c clock.Clock) *Journal {
	return &Journal{logger: logger, dedup: logging.NewDedup(), bus: bus, metrics: m, clock: c}
}

func (j *Journal) Logger() *slog.Logger { return j.logger }

func (j *Journal) Metrics() *metrics.Metrics { return j.metrics }

func (j *Journal) clientAttrs(c *party.Client, role Role) []any {
	return []any{"client", c.Index, "role", string(role), "state", string(c.State)}
}

// Client logs msg for c unless it repeats the previous line for c.
func (j *Journal) Client(c *party.Client, role Role, msg string, args ...any) {
	key := c.ID.String()
	if !j.dedup.Fresh(key, fmt.Sprint(append([]any{role, msg}, args...)...)) {
		return
	}
	j.logger.Info(msg, append(j.clientAttrs(c, role), args...)...)
}

// ClientWarn always logs; failures are worth repeating.
func (j *Journal) ClientWarn(c *party.Client, role Role, msg string, args ...any) {
	j.dedup.Fresh(c.ID.String(), msg)
	j.logger.Warn(msg, append(j.clientAttrs(c, role), args...)...)
}

// Transition moves c to state and records it. Nothing is recorded when the
// state does not change.
func (j *Journal) Transition(c *party.Client, role Role, to party.State, reason string) bool {
	prev, changed := c.SetState(to)
	if !changed {
		return false
	}
	j.logger.Info("state change",
		"client", c.Index, "role", string(role),
		"from", string(prev), "to", string(to), "reason", reason)
	j.metrics.Transition(string(prev), string(to))
	j.metrics.SetClientState(c.Index, string(to), stateNames())
	j.Publish(events.Event{
		Kind:    events.KindTransition,
		Client:  c.ID,
		Index:   c.Index,
		From:    string(prev),
		To:      string(to),
		Message: reason,
	})
	return true
}

// Publish stamps ev and hands it to the bus.
func (j *Journal) Publish(ev events.Event) {
	if ev.At.IsZero() {
		ev.At = j.clock.Now()
	}
	j.bus.Publish(ev)
}

func (j *Journal) Reset() { j.dedup.Reset() }

func stateNames() []string {
	out := make([]string, len(party.States))
	for i, s := range party.States {
		out[i] = string(s)
	}
	return out
}
