// Package profile loads the game profile: which reference images mean what,
// where to click, the mode catalog, the scripted click sequences and the
// day's task targets.
package profile

import (
	"errors"
	"fmt"
	"os"
	"partysync/internal/vision"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModeID      = "mode_item"
	DefaultRoomPass    = "9527"
	DefaultClaimClicks = 10
)

// Point accepts either [x, y] or {x: .., y: ..}.
type Point vision.Point

func (p *Point) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.SequenceNode {
		var xy []int
		if err := n.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return fmt.Errorf("line %d: point needs exactly 2 coordinates, got %d", n.Line, len(xy))
		}
		p.X, p.Y = xy[0], xy[1]
		return nil
	}
	var m struct {
		X int `yaml:"x"`
		Y int `yaml:"y"`
	}
	if err := n.Decode(&m); err != nil {
		return err
	}
	p.X, p.Y = m.X, m.Y
	return nil
}

func (p Point) Vision() vision.Point { return vision.Point(p) }

func (p Point) IsZero() bool { return p.X == 0 && p.Y == 0 }

type Templates struct {
	Room        vision.Template `yaml:"room"`
	Lobby       vision.Template `yaml:"lobby"`
	StartButton vision.Template `yaml:"start_button"`
	Ready       vision.Template `yaml:"ready"`
}

type Points struct {
	Ready        Point `yaml:"ready"`
	ChatInput    Point `yaml:"chat_input"`
	RoomSettings Point `yaml:"room_settings"`
	Confirm      Point `yaml:"confirm"`
}

type Keys struct {
	Back  vision.Key `yaml:"back"`
	Nudge vision.Key `yaml:"nudge"`
}

type Mode struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	TargetGames int             `yaml:"target_games"`
	Rule        vision.Template `yaml:"rule"`
	Selector    Point           `yaml:"selector"`
}

type LoginStep struct {
	Name  string          `yaml:"name"`
	Check vision.Template `yaml:"check"`
	Click Point           `yaml:"click"`
}

type Login struct {
	RegionSkip    vision.Template `yaml:"region_skip"`
	AccountInput  vision.Template `yaml:"account_input"`
	UsernameField Point           `yaml:"username_field"`
	PasswordField Point           `yaml:"password_field"`
	Steps         []LoginStep     `yaml:"steps"`
}

type StepAction string

const (
	StepClick StepAction = "click"
	StepType  StepAction = "type"
	StepKey   StepAction = "key"
	StepCopy  StepAction = "copy"
	StepWait  StepAction = "wait"
)

// Step is one scripted action in a click sequence.
type Step struct {
	Name   string        `yaml:"name"`
	Action StepAction    `yaml:"action"`
	At     Point         `yaml:"at"`
	Text   string        `yaml:"text"`
	Key    vision.Key    `yaml:"key"`
	Wait   time.Duration `yaml:"wait"`
}

type Claim struct {
	Entry       vision.Template   `yaml:"entry"`
	ClaimButton vision.Template   `yaml:"claim_button"`
	RewardBoxes []vision.Template `yaml:"reward_boxes"`
	TeamTab     Point             `yaml:"team_tab"`
	MaxClicks   int               `yaml:"max_clicks"`
}

type Interrupts struct {
	Enabled   bool              `yaml:"enabled"`
	Templates []vision.Template `yaml:"templates"`
	Key       vision.Key        `yaml:"key"`
	Interval  time.Duration     `yaml:"interval"`
	Debounce  time.Duration     `yaml:"debounce"`
}

type TaskTarget struct {
	ID      string `yaml:"id"`
	Target  int    `yaml:"target"`
	Enabled *bool  `yaml:"enabled"`
}

type ModeControl struct {
	Enabled bool         `yaml:"enabled"`
	Tasks   []TaskTarget `yaml:"tasks"`
}

type DailyTask struct {
	Enabled     *bool `yaml:"enabled"`
	TargetGames int   `yaml:"target_games"`
}

// Tasks is the day's target configuration.
type Tasks struct {
	ModeControl ModeControl          `yaml:"mode_control"`
	DailyTasks  map[string]DailyTask `yaml:"daily_tasks"`
}

type Profile struct {
	Templates     Templates      `yaml:"templates"`
	Points        Points         `yaml:"points"`
	Keys          Keys           `yaml:"keys"`
	RoomPassword  string         `yaml:"room_password"`
	DefaultMode   string         `yaml:"default_mode"`
	ModeSelection *vision.Region `yaml:"mode_selection_region"`
	Modes         []Mode         `yaml:"modes"`
	Login         Login          `yaml:"login"`
	RoomCreation  []Step         `yaml:"room_creation"`
	RoomInfo      []Step         `yaml:"room_info"`
	Claim         Claim          `yaml:"claim"`
	Interrupts    Interrupts     `yaml:"interrupts"`
	Tasks         Tasks          `yaml:"tasks"`
}

func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening profile: %w", err)
	}
	defer f.Close()

	var p Profile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return &p, nil
}

func defaultThreshold(t *vision.Template, v float64) {
	if t.Threshold == 0 {
		t.Threshold = v
	}
}

// ApplyDefaults fills unset fields with the values the game ships with.
func (p *Profile) ApplyDefaults() {
	defaultThreshold(&p.Templates.Room, 0.8)
	defaultThreshold(&p.Templates.StartButton, 0.8)
	defaultThreshold(&p.Templates.Ready, 0.8)
	defaultThreshold(&p.Templates.Lobby, 0.75)

	if p.Points.Ready.IsZero() {
		p.Points.Ready = Point{X: 1600, Y: 280}
	}
	if p.Points.ChatInput.IsZero() {
		p.Points.ChatInput = Point{X: 300, Y: 1060}
	}
	if p.Keys.Back == "" {
		p.Keys.Back = vision.KeyBackspace
	}
	if p.Keys.Nudge == "" {
		p.Keys.Nudge = vision.KeySpace
	}
	if p.RoomPassword == "" {
		p.RoomPassword = DefaultRoomPass
	}
	for i := range p.Modes {
		defaultThreshold(&p.Modes[i].Rule, 0.8)
		if p.Modes[i].Rule.Region == nil && p.ModeSelection != nil {
			r := *p.ModeSelection
			p.Modes[i].Rule.Region = &r
		}
	}
	if p.DefaultMode == "" {
		if len(p.Modes) > 0 {
			p.DefaultMode = p.Modes[0].ID
		} else {
			p.DefaultMode = DefaultModeID
		}
	}

	defaultThreshold(&p.Login.RegionSkip, 0.8)
	defaultThreshold(&p.Login.AccountInput, 0.8)
	for i := range p.Login.Steps {
		defaultThreshold(&p.Login.Steps[i].Check, 0.8)
	}

	if p.Claim.MaxClicks == 0 {
		p.Claim.MaxClicks = DefaultClaimClicks
	}
	if p.Claim.TeamTab.IsZero() {
		p.Claim.TeamTab = Point{X: 46, Y: 810}
	}
	defaultThreshold(&p.Claim.Entry, 0.85)
	defaultThreshold(&p.Claim.ClaimButton, 0.85)
	for i := range p.Claim.RewardBoxes {
		defaultThreshold(&p.Claim.RewardBoxes[i], 0.85)
	}

	if p.Interrupts.Key == "" {
		p.Interrupts.Key = vision.KeySpace
	}
	if p.Interrupts.Interval == 0 {
		p.Interrupts.Interval = 100 * time.Millisecond
	}
	if p.Interrupts.Debounce == 0 {
		p.Interrupts.Debounce = 500 * time.Millisecond
	}
	for i := range p.Interrupts.Templates {
		defaultThreshold(&p.Interrupts.Templates[i], 0.75)
	}
}

func (p *Profile) Validate() error {
	var errs []error
	required := map[string]vision.Template{
		"templates.room":         p.Templates.Room,
		"templates.lobby":        p.Templates.Lobby,
		"templates.start_button": p.Templates.StartButton,
		"templates.ready":        p.Templates.Ready,
	}
	for name, t := range required {
		if !t.Defined() {
			errs = append(errs, fmt.Errorf("%s: image is required", name))
		}
	}

	if len(p.Modes) == 0 {
		errs = append(errs, errors.New("modes: at least one mode is required"))
	}
	seen := make(map[string]bool)
	for i, m := range p.Modes {
		if m.ID == "" {
			errs = append(errs, fmt.Errorf("modes[%d]: id is required", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Errorf("modes[%d]: duplicate id %q", i, m.ID))
		}
		seen[m.ID] = true
	}
	if len(p.Modes) > 0 && !seen[p.DefaultMode] {
		errs = append(errs, fmt.Errorf("default_mode %q is not in the mode catalog", p.DefaultMode))
	}

	switch p.Interrupts.Key {
	case vision.KeySpace, vision.KeyEnter, vision.KeyEscape:
	default:
		errs = append(errs, fmt.Errorf("interrupts.key %q must be space, enter or esc", p.Interrupts.Key))
	}

	for i, s := range append(append([]Step{}, p.RoomCreation...), p.RoomInfo...) {
		switch s.Action {
		case StepClick, StepType, StepKey, StepCopy, StepWait:
		default:
			errs = append(errs, fmt.Errorf("sequence step %d (%s): unknown action %q", i, s.Name, s.Action))
		}
	}
	return errors.Join(errs...)
}

func (p *Profile) Mode(id string) (Mode, bool) {
	for _, m := range p.Modes {
		if m.ID == id {
			return m, true
		}
	}
	return Mode{}, false
}
