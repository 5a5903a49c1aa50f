// Package profiletest builds a small, fully populated profile for tests.
package profiletest

import (
	"partysync/internal/profile"
	"partysync/internal/vision"
	"time"
)

// Image names used by New.
const (
	Room        = "room.png"
	Lobby       = "lobby.png"
	Start       = "start.png"
	Ready       = "ready.png"
	RuleItem    = "rule_item.png"
	RuleSpeed   = "rule_speed.png"
	RegionSkip  = "region_skip.png"
	Account     = "account.png"
	LoginAgree  = "login_agree.png"
	LoginStart  = "login_start.png"
	ClaimEntry  = "task_entry.png"
	ClaimButton = "task_claim.png"
	RewardBox   = "reward_box.png"
	Popup       = "popup.png"
)

// Points used by New.
var (
	ReadyPoint    = profile.Point{X: 1600, Y: 280}
	ChatPoint     = profile.Point{X: 300, Y: 1060}
	SettingsPoint = profile.Point{X: 1450, Y: 130}
	ConfirmPoint  = profile.Point{X: 960, Y: 720}
	ItemSelector  = profile.Point{X: 420, Y: 260}
	SpeedSelector = profile.Point{X: 620, Y: 260}
	CreatePoint   = profile.Point{X: 1700, Y: 980}
	InvitePoint   = profile.Point{X: 1500, Y: 60}
	AgreePoint    = profile.Point{X: 860, Y: 800}
	LoginPoint    = profile.Point{X: 960, Y: 900}
)

func tpl(image string) vision.Template {
	return vision.Template{Image: image}
}

// New returns a two-mode profile with every target disabled except those in
// targets.
func New(targets map[string]int) *profile.Profile {
	p := &profile.Profile{
		Templates: profile.Templates{
			Room:        tpl(Room),
			Lobby:       tpl(Lobby),
			StartButton: tpl(Start),
			Ready:       tpl(Ready),
		},
		Points: profile.Points{
			Ready:        ReadyPoint,
			ChatInput:    ChatPoint,
			RoomSettings: SettingsPoint,
			Confirm:      ConfirmPoint,
		},
		RoomPassword: "9527",
		DefaultMode:  "mode_item",
		Modes: []profile.Mode{
			{ID: "mode_item", Name: "Item", Rule: tpl(RuleItem), Selector: ItemSelector},
			{ID: "mode_speed", Name: "Speed", Rule: tpl(RuleSpeed), Selector: SpeedSelector},
		},
		Login: profile.Login{
			RegionSkip:    tpl(RegionSkip),
			AccountInput:  tpl(Account),
			UsernameField: profile.Point{X: 960, Y: 480},
			PasswordField: profile.Point{X: 960, Y: 560},
			Steps: []profile.LoginStep{
				{Name: "agree", Check: tpl(LoginAgree), Click: AgreePoint},
				{Name: "start", Check: tpl(LoginStart), Click: LoginPoint},
			},
		},
		RoomCreation: []profile.Step{
			{Name: "open_create", Action: profile.StepClick, At: CreatePoint},
			{Name: "settle", Action: profile.StepWait, Wait: 800 * time.Millisecond},
		},
		RoomInfo: []profile.Step{
			{Name: "open_invite", Action: profile.StepClick, At: InvitePoint},
			{Name: "copy", Action: profile.StepCopy},
		},
		Claim: profile.Claim{
			Entry:       tpl(ClaimEntry),
			ClaimButton: tpl(ClaimButton),
			RewardBoxes: []vision.Template{tpl(RewardBox)},
		},
		Interrupts: profile.Interrupts{
			Enabled:   true,
			Templates: []vision.Template{tpl(Popup)},
		},
		Tasks: profile.Tasks{ModeControl: profile.ModeControl{Enabled: true}},
	}
	for _, m := range p.Modes {
		p.Tasks.ModeControl.Tasks = append(p.Tasks.ModeControl.Tasks, profile.TaskTarget{ID: m.ID, Target: targets[m.ID]})
	}
	p.ApplyDefaults()
	return p
}
