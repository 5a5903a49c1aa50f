package httpport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"partysync/internal/vision"
	"strings"
	"testing"
)

func TestClient_Probe(t *testing.T) {
	var got probeRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/probe" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(vision.Match{Matched: true, Confidence: 0.91, Location: vision.Point{X: 3, Y: 4}})
	}))
	defer ts.Close()

	c := New(ts.URL+"/", ts.Client())
	m, err := c.Probe(context.Background(), 42, vision.Template{Image: "start.png", Threshold: 0.8})
	if err != nil {
		t.Fatalf("Probe() error: %v", err)
	}
	if !m.Matched || m.Location.X != 3 || m.Location.Y != 4 {
		t.Errorf("Probe() = %+v", m)
	}
	if got.ClientID != 42 || got.Image != "start.png" || got.Threshold != 0.8 {
		t.Errorf("request = %+v", got)
	}
}

func TestClient_ActionsAndClipboard(t *testing.T) {
	var paths []string
	var typed actionRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/v1/type":
			json.NewDecoder(r.Body).Decode(&typed)
		case "/v1/clipboard":
			json.NewEncoder(w).Encode(clipboardResponse{Text: "Room 12345"})
		}
	}))
	defer ts.Close()

	c := New(ts.URL, ts.Client())
	ctx := context.Background()
	if err := c.Click(ctx, 1, vision.Point{X: 1, Y: 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.PressKey(ctx, 1, vision.KeyEnter); err != nil {
		t.Fatal(err)
	}
	if err := c.TypeText(ctx, 1, vision.Point{X: 300, Y: 1060}, "##123 9527"); err != nil {
		t.Fatal(err)
	}
	if err := c.SelectAllAndCopy(ctx, 1); err != nil {
		t.Fatal(err)
	}
	text, err := c.ReadClipboard(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if text != "Room 12345" {
		t.Errorf("ReadClipboard() = %q, want %q", text, "Room 12345")
	}
	if typed.Text != "##123 9527" || typed.X != 300 {
		t.Errorf("type request = %+v", typed)
	}
	want := "/v1/click,/v1/key,/v1/type,/v1/copy,/v1/clipboard"
	if strings.Join(paths, ",") != want {
		t.Errorf("paths = %v, want %s", paths, want)
	}
}

func TestClient_ClickAtScreenEdge(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer ts.Close()

	c := New(ts.URL, ts.Client())
	if err := c.Click(context.Background(), 1, vision.Point{X: 0, Y: 540}); err != nil {
		t.Fatal(err)
	}
	if x, ok := got["x"]; !ok || x != float64(0) {
		t.Errorf("click x = %v (present %v), want 0", x, ok)
	}
	if y := got["y"]; y != float64(540) {
		t.Errorf("click y = %v, want 540", y)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "window gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c := New(ts.URL, ts.Client())
	_, err := c.Probe(context.Background(), 1, vision.Template{Image: "x.png"})
	if err == nil || !strings.Contains(err.Error(), "window gone") {
		t.Errorf("Probe() error = %v, want status error with body", err)
	}
}
