package routines

import (
	"context"
	"partysync/internal/party"
)

func (r *Runner) InRoom(ctx context.Context, id party.ClientID) bool {
	return r.seen(ctx, id, r.prof.Templates.Room)
}

func (r *Runner) InLobby(ctx context.Context, id party.ClientID) bool {
	return r.seen(ctx, id, r.prof.Templates.Lobby)
}

// HasStartButton reports whether id shows the start control only a room
// owner gets.
func (r *Runner) HasStartButton(ctx context.Context, id party.ClientID) bool {
	return r.seen(ctx, id, r.prof.Templates.StartButton)
}

func (r *Runner) IsReady(ctx context.Context, id party.ClientID) bool {
	return r.seen(ctx, id, r.prof.Templates.Ready)
}

// OnLoginScreen reports whether any part of the login flow is visible.
func (r *Runner) OnLoginScreen(ctx context.Context, id party.ClientID) bool {
	l := r.prof.Login
	if r.seen(ctx, id, l.RegionSkip) || r.seen(ctx, id, l.AccountInput) {
		return true
	}
	for _, s := range l.Steps {
		if r.seen(ctx, id, s.Check) {
			return true
		}
	}
	return false
}

// DetectMode reads the running mode off the room screen. It returns "" when
// no rule image matches.
func (r *Runner) DetectMode(ctx context.Context, id party.ClientID) string {
	for _, m := range r.prof.Modes {
		if r.seen(ctx, id, m.Rule) {
			return m.ID
		}
	}
	return ""
}
