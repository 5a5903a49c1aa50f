package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"partysync/internal/analytics"
	"partysync/internal/broadcast"
	"partysync/internal/clock"
	"partysync/internal/events"
	"partysync/internal/logging"
	"partysync/internal/metrics"
	"partysync/internal/modes"
	"partysync/internal/orchestrator"
	"partysync/internal/party"
	"partysync/internal/wshub"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type fakeCoord struct {
	mu         sync.Mutex
	paused     bool
	stopped    bool
	resets     int
	exceptions map[party.ClientID]string
}

func (f *fakeCoord) Status() *orchestrator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &orchestrator.Status{RunID: "run-1", Paused: f.paused || len(f.exceptions) > 0}
	for id, kind := range f.exceptions {
		if st.Exceptions == nil {
			st.Exceptions = make(map[string]string)
		}
		st.Exceptions[id.String()] = kind
	}
	return st
}

func (f *fakeCoord) Pause()        { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeCoord) Resume()       { f.mu.Lock(); f.paused = false; f.mu.Unlock() }
func (f *fakeCoord) Toggle()       { f.mu.Lock(); f.paused = !f.paused; f.mu.Unlock() }
func (f *fakeCoord) Stop()         { f.mu.Lock(); f.stopped = true; f.mu.Unlock() }
func (f *fakeCoord) RequestReset() { f.mu.Lock(); f.resets++; f.mu.Unlock() }

func (f *fakeCoord) NotifyException(id party.ClientID, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exceptions == nil {
		f.exceptions = make(map[party.ClientID]string)
	}
	f.exceptions[id] = kind
}

func (f *fakeCoord) NotifyRecovered(id party.ClientID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exceptions, id)
}

// snapshot copies the fields tests assert on.
func (f *fakeCoord) snapshot() (paused, stopped bool, resets, exceptions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.stopped, f.resets, len(f.exceptions)
}

type fakeProgress []modes.ModeProgress

func (p fakeProgress) Progress() []modes.ModeProgress { return p }

func newTestServer(t *testing.T) (*Server, *fakeCoord, *httptest.Server) {
	t.Helper()
	coord := &fakeCoord{}
	srv := &Server{
		Coord:       coord,
		Progress:    fakeProgress{{ID: "mode_item", Name: "Item", Completed: 1, Target: 2, Active: true}},
		Hub:         wshub.NewHub(logging.Discard()),
		Broadcaster: broadcast.NewBroadcaster(events.NewBus()),
		Metrics:     metrics.New(),
		Clock:       clock.NewFake(time.Date(2026, 10, 3, 21, 0, 0, 0, time.UTC)),
		Logger:      logging.Discard(),
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, coord, ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestHandleHealth(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decode[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestHandleStatus(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	st := decode[orchestrator.Status](t, resp)
	if st.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", st.RunID, "run-1")
	}
}

func TestHandleControl(t *testing.T) {
	_, coord, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/control/pause", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	st := decode[orchestrator.Status](t, resp)
	if !st.Paused {
		t.Error("status after pause is not paused")
	}

	for _, action := range []string{"reset", "stop", "resume"} {
		resp, err := http.Post(ts.URL+"/control/"+action, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", action, resp.StatusCode, http.StatusOK)
		}
	}
	if paused, stopped, resets, _ := coord.snapshot(); paused || !stopped || resets != 1 {
		t.Errorf("coord = paused %v stopped %v resets %d", paused, stopped, resets)
	}
}

func TestHandleControl_Toggle(t *testing.T) {
	_, coord, ts := newTestServer(t)

	for i, want := range []bool{true, false} {
		resp, err := http.Post(ts.URL+"/control/toggle", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("toggle %d status = %d, want %d", i, resp.StatusCode, http.StatusOK)
		}
		if paused, _, _, _ := coord.snapshot(); paused != want {
			t.Errorf("after toggle %d paused = %v, want %v", i, paused, want)
		}
	}
}

func TestHandleControl_Unknown(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/control/explode", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	resp, err = http.Get(ts.URL + "/control/pause")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestHandleClientSignal(t *testing.T) {
	_, coord, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/clients/1002/exception?kind=disconnected", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	st := decode[orchestrator.Status](t, resp)
	if st.Exceptions["1002"] != "disconnected" {
		t.Errorf("Exceptions = %v, want 1002=disconnected", st.Exceptions)
	}

	resp, err = http.Post(ts.URL+"/clients/1002/recovered", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if _, _, _, n := coord.snapshot(); n != 0 {
		t.Errorf("exceptions after recovery = %d, want 0", n)
	}

	resp, err = http.Post(ts.URL+"/clients/abc/exception", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleStats_WithoutDatabase(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	r := decode[analytics.Report](t, resp)
	if r.Day != "2026-10-03" {
		t.Errorf("Day = %q, want %q", r.Day, "2026-10-03")
	}
	if len(r.Modes) != 1 || r.Modes[0].Remaining != 1 {
		t.Errorf("Modes = %+v", r.Modes)
	}

	resp, err = http.Get(ts.URL + "/stats?days=0")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("days=0 status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleMetrics(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "partysync_ticks_total") {
		t.Error("metrics output missing partysync_ticks_total")
	}
}

func TestHandleEvents(t *testing.T) {
	srv, _, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?kind=room_recorded", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}

	srv.Broadcaster.Broadcast(events.Event{Kind: events.KindTransition, Client: 7})
	srv.Broadcaster.Broadcast(events.Event{Kind: events.KindRoomRecorded, RoomID: "48213"})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for len(lines) < 2 && sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	if len(lines) < 2 {
		t.Fatalf("read %d lines, want 2", len(lines))
	}
	if lines[0] != "event: room_recorded" {
		t.Errorf("event line = %q", lines[0])
	}
	if !strings.Contains(lines[1], `"room_id":"48213"`) {
		t.Errorf("data line = %q", lines[1])
	}
}

func TestHandleWS(t *testing.T) {
	srv, coord, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.CloseNow()

	read := func() wshub.ServerMessage {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error: %v", err)
		}
		var msg wshub.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		return msg
	}

	if msg := read(); msg.Type != wshub.CmdStatus {
		t.Errorf("first message type = %q, want %q", msg.Type, wshub.CmdStatus)
	}
	if srv.Hub.Count() != 1 {
		t.Errorf("Count() = %d, want 1", srv.Hub.Count())
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"t":"pause"}`)); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != wshub.CmdStatus {
		t.Errorf("reply type = %q, want %q", msg.Type, wshub.CmdStatus)
	}
	if paused, _, _, _ := coord.snapshot(); !paused {
		t.Error("pause command not applied")
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"t":"dance"}`)); err != nil {
		t.Fatal(err)
	}
	if msg := read(); msg.Type != "error" {
		t.Errorf("reply type = %q, want error", msg.Type)
	}
}
