package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, f := range fams {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveTick(120 * time.Millisecond)
	m.ObserveTick(80 * time.Millisecond)
	m.MatchStarted("mode_item")
	m.LeaderChanged()

	if f := family(t, m, "partysync_ticks_total"); f == nil || f.Metric[0].GetCounter().GetValue() != 2 {
		t.Errorf("ticks_total = %v, want 2", f)
	}
	f := family(t, m, "partysync_matches_started_total")
	if f == nil || len(f.Metric) != 1 || f.Metric[0].GetCounter().GetValue() != 1 {
		t.Errorf("matches_started_total = %v", f)
	}
}

func TestMetrics_ClientStateOneHot(t *testing.T) {
	m := New()
	all := []string{"LOBBY", "ROOM", "INGAME"}
	m.SetClientState(1, "LOBBY", all)
	m.SetClientState(1, "ROOM", all)

	f := family(t, m, "partysync_client_state")
	if f == nil {
		t.Fatal("client_state not gathered")
	}
	sum := 0.0
	for _, metric := range f.Metric {
		v := metric.GetGauge().GetValue()
		sum += v
		for _, l := range metric.Label {
			if l.GetName() == "state" && l.GetValue() == "ROOM" && v != 1 {
				t.Error("ROOM gauge should be 1")
			}
		}
	}
	if sum != 1 {
		t.Errorf("sum of client_state gauges = %v, want 1", sum)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTick(time.Second)
	m.SetClientState(1, "ROOM", []string{"ROOM"})
	m.Transition("ROOM", "INGAME")
	m.LeaderChanged()
	m.MatchStarted("x")
	m.SessionCleared("deadlock")
	m.InterruptDismissed(1)
	m.SetPaused(true)
	m.SetModeProgress("x", 1, 2)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetPaused(true)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "partysync_paused 1") {
		t.Errorf("metrics output missing paused gauge:\n%s", body)
	}
}
