package routines

import (
	"context"
	"fmt"
	"partysync/internal/party"
	"partysync/internal/vision"
)

type LoginOutcome string

const (
	LoginRegionSkipped LoginOutcome = "region_skipped"
	LoginCredentials   LoginOutcome = "credentials_entered"
	LoginStepClicked   LoginOutcome = "step_clicked"
	LoginNudged        LoginOutcome = "nudged"
)

// EnterCredentials types the account into the login form and submits it.
func (r *Runner) EnterCredentials(ctx context.Context, id party.ClientID, acct party.Account) error {
	if acct.Empty() {
		return ErrNoCredentials
	}
	l := r.prof.Login
	if err := r.port.TypeText(ctx, id, l.UsernameField.Vision(), acct.Username); err != nil {
		return fmt.Errorf("typing username: %w", err)
	}
	if err := r.wait(ctx, settleShort); err != nil {
		return err
	}
	if err := r.port.TypeText(ctx, id, l.PasswordField.Vision(), acct.Password); err != nil {
		return fmt.Errorf("typing password: %w", err)
	}
	if err := r.wait(ctx, settleShort); err != nil {
		return err
	}
	return r.press(ctx, id, vision.KeyEnter)
}

// LoginStep advances the login flow by one action. step is the client's
// cursor into the configured sequence; the returned cursor replaces it.
func (r *Runner) LoginStep(ctx context.Context, id party.ClientID, step int, acct party.Account) (LoginOutcome, int, error) {
	l := r.prof.Login

	if r.seen(ctx, id, l.RegionSkip) {
		return LoginRegionSkipped, step, r.press(ctx, id, r.prof.Keys.Nudge)
	}
	if r.seen(ctx, id, l.AccountInput) {
		if err := r.EnterCredentials(ctx, id, acct); err != nil {
			return LoginCredentials, step, err
		}
		return LoginCredentials, 0, nil
	}

	if step < 0 || step >= len(l.Steps) {
		step = 0
	}
	if len(l.Steps) > 0 {
		s := l.Steps[step]
		if r.seen(ctx, id, s.Check) {
			if err := r.port.Click(ctx, id, s.Click.Vision()); err != nil {
				return LoginStepClicked, step, fmt.Errorf("clicking login step %s: %w", s.Name, err)
			}
			return LoginStepClicked, step + 1, nil
		}
	}
	return LoginNudged, step, r.press(ctx, id, r.prof.Keys.Nudge)
}
