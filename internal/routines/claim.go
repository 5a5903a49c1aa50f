package routines

import (
	"context"
	"fmt"
	"partysync/internal/party"
	"partysync/internal/vision"
)

// ClaimRewards opens the reward panel and collects everything claimable on
// the personal and team pages. It returns how many rewards were clicked.
func (r *Runner) ClaimRewards(ctx context.Context, id party.ClientID) (int, error) {
	c := r.prof.Claim
	ok, err := r.clickImage(ctx, id, c.Entry)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrClaimEntryGone
	}
	if err := r.wait(ctx, settleLong); err != nil {
		return 0, err
	}

	claimed, err := r.claimLoop(ctx, id)
	if err != nil {
		return claimed, err
	}

	for _, box := range c.RewardBoxes {
		hit, err := r.clickImage(ctx, id, box)
		if err != nil {
			return claimed, err
		}
		if !hit {
			continue
		}
		claimed++
		if err := r.dismiss(ctx, id); err != nil {
			return claimed, err
		}
	}

	if err := r.port.Click(ctx, id, c.TeamTab.Vision()); err != nil {
		return claimed, fmt.Errorf("opening team tab: %w", err)
	}
	if err := r.wait(ctx, settleLong); err != nil {
		return claimed, err
	}
	n, err := r.claimLoop(ctx, id)
	claimed += n
	if err != nil {
		return claimed, err
	}

	if err := r.Back(ctx, id); err != nil {
		return claimed, err
	}
	return claimed, r.wait(ctx, settleLong)
}

// claimLoop clicks the claim button until it disappears or the click budget
// runs out.
func (r *Runner) claimLoop(ctx context.Context, id party.ClientID) (int, error) {
	n := 0
	for n < r.prof.Claim.MaxClicks {
		hit, err := r.clickImage(ctx, id, r.prof.Claim.ClaimButton)
		if err != nil {
			return n, err
		}
		if !hit {
			break
		}
		n++
		if err := r.dismiss(ctx, id); err != nil {
			return n, err
		}
	}
	return n, nil
}

// dismiss closes the reward popup that follows a claim.
func (r *Runner) dismiss(ctx context.Context, id party.ClientID) error {
	if err := r.wait(ctx, settleShort); err != nil {
		return err
	}
	if err := r.press(ctx, id, vision.KeySpace); err != nil {
		return err
	}
	return r.wait(ctx, settleStep)
}
