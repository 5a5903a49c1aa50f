// Package visiontest provides a scripted vision.Port for tests.
package visiontest

import (
	"context"
	"partysync/internal/party"
	"partysync/internal/vision"
	"sync"
)

type ActionKind string

const (
	ActClick ActionKind = "click"
	ActKey   ActionKind = "key"
	ActType  ActionKind = "type"
	ActCopy  ActionKind = "copy"
)

type Action struct {
	Client party.ClientID
	Kind   ActionKind
	Point  vision.Point
	Key    vision.Key
	Text   string
}

// Port answers probes from a per-client set of visible images and records
// every actuation. OnAction, when set, runs after each actuation and may
// change what is visible.
type Port struct {
	mu        sync.Mutex
	visible   map[party.ClientID]map[string]vision.Point
	probes    map[party.ClientID]map[string]int
	probeErr  map[party.ClientID]error
	actions   []Action
	clipboard string

	OnAction func(a Action)
}

func New() *Port {
	return &Port{
		visible:  make(map[party.ClientID]map[string]vision.Point),
		probes:   make(map[party.ClientID]map[string]int),
		probeErr: make(map[party.ClientID]error),
	}
}

func (p *Port) Show(id party.ClientID, image string) {
	p.ShowAt(id, image, vision.Point{})
}

func (p *Port) ShowAt(id party.ClientID, image string, at vision.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible[id] == nil {
		p.visible[id] = make(map[string]vision.Point)
	}
	p.visible[id][image] = at
}

func (p *Port) Hide(id party.ClientID, images ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, img := range images {
		delete(p.visible[id], img)
	}
}

func (p *Port) HideAll(id party.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.visible, id)
}

func (p *Port) Visible(id party.ClientID, image string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.visible[id][image]
	return ok
}

// FailProbes makes every probe for id return err until cleared with nil.
func (p *Port) FailProbes(id party.ClientID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.probeErr, id)
		return
	}
	p.probeErr[id] = err
}

func (p *Port) SetClipboard(s string) {
	p.mu.Lock()
	p.clipboard = s
	p.mu.Unlock()
}

func (p *Port) ProbeCount(id party.ClientID, image string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes[id][image]
}

func (p *Port) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	return out
}

func (p *Port) ActionsFor(id party.ClientID) []Action {
	var out []Action
	for _, a := range p.Actions() {
		if a.Client == id {
			out = append(out, a)
		}
	}
	return out
}

func (p *Port) ClearActions() {
	p.mu.Lock()
	p.actions = nil
	p.mu.Unlock()
}

func (p *Port) Probe(_ context.Context, id party.ClientID, t vision.Template) (vision.Match, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.probes[id] == nil {
		p.probes[id] = make(map[string]int)
	}
	p.probes[id][t.Image]++
	if err := p.probeErr[id]; err != nil {
		return vision.Match{}, err
	}
	at, ok := p.visible[id][t.Image]
	if !ok {
		return vision.Match{Confidence: 0.1}, nil
	}
	return vision.Match{Matched: true, Confidence: 0.95, Location: at}, nil
}

func (p *Port) record(a Action) error {
	p.mu.Lock()
	p.actions = append(p.actions, a)
	hook := p.OnAction
	p.mu.Unlock()
	if hook != nil {
		hook(a)
	}
	return nil
}

func (p *Port) Click(_ context.Context, id party.ClientID, at vision.Point) error {
	return p.record(Action{Client: id, Kind: ActClick, Point: at})
}

func (p *Port) PressKey(_ context.Context, id party.ClientID, k vision.Key) error {
	return p.record(Action{Client: id, Kind: ActKey, Key: k})
}

func (p *Port) TypeText(_ context.Context, id party.ClientID, at vision.Point, text string) error {
	return p.record(Action{Client: id, Kind: ActType, Point: at, Text: text})
}

func (p *Port) SelectAllAndCopy(_ context.Context, id party.ClientID) error {
	return p.record(Action{Client: id, Kind: ActCopy})
}

func (p *Port) ReadClipboard(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clipboard, nil
}

var _ vision.Port = (*Port)(nil)
