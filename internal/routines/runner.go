// Package routines holds every observation and scripted interaction the
// coordinator performs on a single client: "is this client in a room",
// "create a room", "claim the day's rewards" and so on. Routines block for
// as long as the game needs to react and return early on cancellation.
package routines

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"partysync/internal/clock"
	"partysync/internal/party"
	"partysync/internal/profile"
	"partysync/internal/vision"
	"strings"
	"time"
)

var (
	ErrNoRoomID       = errors.New("no room number in clipboard")
	ErrNoCredentials  = errors.New("client has no account configured")
	ErrClaimEntryGone = errors.New("reward entry not visible")
)

// How long the game takes to react to an input before the next probe.
var (
	settleShort = 300 * time.Millisecond
	settleStep  = 500 * time.Millisecond
	settleLong  = 1 * time.Second
	settleRoom  = 2 * time.Second
)

const switchAttempts = 3

type Runner struct {
	port   vision.Port
	clock  clock.Clock
	prof   *profile.Profile
	logger *slog.Logger
}

func NewRunner(port vision.Port, c clock.Clock, prof *profile.Profile, logger *slog.Logger) *Runner {
	return &Runner{port: port, clock: c, prof: prof, logger: logger.With("component", "routines")}
}

func (r *Runner) Profile() *profile.Profile { return r.prof }

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	return clock.Sleep(ctx, r.clock, d)
}

// locate probes t and returns where it matched. Probe failures count as not
// found.
func (r *Runner) locate(ctx context.Context, id party.ClientID, t vision.Template) (vision.Point, bool) {
	if !t.Defined() {
		return vision.Point{}, false
	}
	m, err := r.port.Probe(ctx, id, t)
	if err != nil {
		r.logger.Debug("probe failed", "client", id, "image", t.Image, "err", err)
		return vision.Point{}, false
	}
	return m.Location, m.Matched
}

func (r *Runner) seen(ctx context.Context, id party.ClientID, t vision.Template) bool {
	_, ok := r.locate(ctx, id, t)
	return ok
}

// clickImage clicks t where it was found.
func (r *Runner) clickImage(ctx context.Context, id party.ClientID, t vision.Template) (bool, error) {
	at, ok := r.locate(ctx, id, t)
	if !ok {
		return false, nil
	}
	if err := r.port.Click(ctx, id, at); err != nil {
		return false, fmt.Errorf("clicking %s: %w", t.Image, err)
	}
	return true, nil
}

func (r *Runner) press(ctx context.Context, id party.ClientID, k vision.Key) error {
	if err := r.port.PressKey(ctx, id, k); err != nil {
		return fmt.Errorf("pressing %s: %w", k, err)
	}
	return nil
}

// RunSequence performs a scripted list of steps. "{password}" in typed text
// is replaced with the room password.
func (r *Runner) RunSequence(ctx context.Context, id party.ClientID, steps []profile.Step) error {
	for i, s := range steps {
		var err error
		switch s.Action {
		case profile.StepClick:
			err = r.port.Click(ctx, id, s.At.Vision())
		case profile.StepType:
			err = r.port.TypeText(ctx, id, s.At.Vision(), strings.ReplaceAll(s.Text, "{password}", r.prof.RoomPassword))
		case profile.StepKey:
			err = r.port.PressKey(ctx, id, s.Key)
		case profile.StepCopy:
			err = r.port.SelectAllAndCopy(ctx, id)
		case profile.StepWait:
			err = r.wait(ctx, s.Wait)
			if err != nil {
				return err
			}
			continue
		default:
			err = fmt.Errorf("unknown action %q", s.Action)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, s.Name, err)
		}
		if err := r.wait(ctx, settleStep); err != nil {
			return err
		}
	}
	return nil
}
