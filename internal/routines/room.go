package routines

import (
	"context"
	"fmt"
	"partysync/internal/party"
	"partysync/internal/profile"
	"partysync/internal/utility"
	"partysync/internal/vision"
)

func (r *Runner) CreateRoom(ctx context.Context, id party.ClientID) error {
	if err := r.RunSequence(ctx, id, r.prof.RoomCreation); err != nil {
		return fmt.Errorf("creating room: %w", err)
	}
	return r.wait(ctx, settleRoom)
}

// ExtractRoomInfo reads the room number through the clipboard and the
// running mode from the rule images. mode is "" when it cannot be read.
func (r *Runner) ExtractRoomInfo(ctx context.Context, id party.ClientID) (roomID, mode string, err error) {
	if err := r.RunSequence(ctx, id, r.prof.RoomInfo); err != nil {
		return "", "", fmt.Errorf("reading room info: %w", err)
	}
	text, err := r.port.ReadClipboard(ctx)
	if err != nil {
		return "", "", fmt.Errorf("reading clipboard: %w", err)
	}
	roomID = utility.LastDigits(text)
	if roomID == "" {
		return "", "", ErrNoRoomID
	}
	return roomID, r.DetectMode(ctx, id), nil
}

// JoinRoom asks the game to join roomID through the chat command.
func (r *Runner) JoinRoom(ctx context.Context, id party.ClientID, roomID string) error {
	chat := r.prof.Points.ChatInput.Vision()
	if err := r.port.Click(ctx, id, chat); err != nil {
		return fmt.Errorf("focusing chat: %w", err)
	}
	if err := r.wait(ctx, settleShort); err != nil {
		return err
	}
	cmd := fmt.Sprintf("##%s %s", roomID, r.prof.RoomPassword)
	if err := r.port.TypeText(ctx, id, chat, cmd); err != nil {
		return fmt.Errorf("typing join command: %w", err)
	}
	if err := r.wait(ctx, settleShort); err != nil {
		return err
	}
	return r.press(ctx, id, vision.KeyEnter)
}

// SwitchMode changes the room to target through the settings dialog and
// reports whether the change was confirmed on screen.
func (r *Runner) SwitchMode(ctx context.Context, id party.ClientID, target profile.Mode) (bool, error) {
	if err := r.port.Click(ctx, id, r.prof.Points.RoomSettings.Vision()); err != nil {
		return false, fmt.Errorf("opening room settings: %w", err)
	}
	if err := r.wait(ctx, settleLong); err != nil {
		return false, err
	}
	for attempt := 1; attempt <= switchAttempts; attempt++ {
		if err := r.port.Click(ctx, id, target.Selector.Vision()); err != nil {
			return false, fmt.Errorf("selecting %s: %w", target.ID, err)
		}
		if err := r.wait(ctx, settleStep); err != nil {
			return false, err
		}
		if r.seen(ctx, id, target.Rule) {
			if err := r.port.Click(ctx, id, r.prof.Points.Confirm.Vision()); err != nil {
				return false, fmt.Errorf("confirming mode: %w", err)
			}
			return true, r.wait(ctx, settleLong)
		}
		r.logger.Debug("mode not confirmed yet", "client", id, "mode", target.ID, "attempt", attempt)
	}
	// Leave the dialog so the room stays usable.
	return false, r.press(ctx, id, r.prof.Keys.Back)
}

// StartMatch clicks the start control where it is currently shown.
func (r *Runner) StartMatch(ctx context.Context, id party.ClientID) (bool, error) {
	return r.clickImage(ctx, id, r.prof.Templates.StartButton)
}

// ClickReady presses the ready control and reports whether the ready marker
// appeared.
func (r *Runner) ClickReady(ctx context.Context, id party.ClientID) (bool, error) {
	if err := r.port.Click(ctx, id, r.prof.Points.Ready.Vision()); err != nil {
		return false, fmt.Errorf("clicking ready: %w", err)
	}
	if err := r.wait(ctx, settleStep); err != nil {
		return false, err
	}
	return r.IsReady(ctx, id), nil
}

// Back presses the back key once.
func (r *Runner) Back(ctx context.Context, id party.ClientID) error {
	return r.press(ctx, id, r.prof.Keys.Back)
}
