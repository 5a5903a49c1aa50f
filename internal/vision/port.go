// Package vision defines the boundary to the perception and input layer that
// sees and drives each game client. The coordinator only ever talks to a
// client through a Port.
package vision

import (
	"context"
	"errors"
	"partysync/internal/party"
)

// ErrTimeout is returned by a guarded call that did not finish in time.
var ErrTimeout = errors.New("vision call timed out")

// Point is a client-relative pixel coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region restricts a probe to part of the client surface.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Template names a reference image and the confidence a match must reach.
type Template struct {
	Image     string  `json:"image" yaml:"image"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Region    *Region `json:"region,omitempty" yaml:"region,omitempty"`
}

func (t Template) Defined() bool { return t.Image != "" }

// Match is the outcome of a probe. Location is the centre of the match and is
// only meaningful when Matched is true.
type Match struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Location   Point   `json:"location"`
}

// Key is a logical key name understood by the input layer.
type Key string

const (
	KeySpace     Key = "space"
	KeyEnter     Key = "enter"
	KeyEscape    Key = "esc"
	KeyBackspace Key = "backspace"
)

// Port observes and actuates game clients. Implementations return errors
// rather than panicking; a failed probe is treated as "not observed".
type Port interface {
	Probe(ctx context.Context, id party.ClientID, t Template) (Match, error)
	Click(ctx context.Context, id party.ClientID, p Point) error
	PressKey(ctx context.Context, id party.ClientID, k Key) error
	TypeText(ctx context.Context, id party.ClientID, at Point, text string) error
	ReadClipboard(ctx context.Context) (string, error)
	SelectAllAndCopy(ctx context.Context, id party.ClientID) error
}
