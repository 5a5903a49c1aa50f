package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"partysync/internal/analytics"
	"partysync/internal/broadcast"
	"partysync/internal/clock"
	"partysync/internal/db"
	"partysync/internal/events"
	"partysync/internal/metrics"
	"partysync/internal/modes"
	"partysync/internal/orchestrator"
	"partysync/internal/party"
	"partysync/internal/wshub"
	"strconv"
)

// Coordinator is the part of the orchestrator the HTTP surface drives.
type Coordinator interface {
	Status() *orchestrator.Status
	Pause()
	Resume()
	Toggle()
	Stop()
	RequestReset()
	NotifyException(id party.ClientID, kind string)
	NotifyRecovered(id party.ClientID)
}

type ProgressReporter interface {
	Progress() []modes.ModeProgress
}

type Server struct {
	Coord       Coordinator
	Progress    ProgressReporter
	Hub         *wshub.Hub
	Broadcaster *broadcast.Broadcaster
	Metrics     *metrics.Metrics
	DB          *db.DB             // nil if no database configured
	Stats       *analytics.Queries // nil if no database configured
	Clock       clock.Clock
	Logger      *slog.Logger
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /control/{action}", s.handleControl)
	mux.HandleFunc("POST /clients/{id}/{signal}", s.handleClientSignal)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_error", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Coord.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 90")
			return
		}
		days = n
	}
	report, err := s.Stats.Report(r.Context(), s.Clock.Now(), days, s.Progress.Progress())
	if err != nil {
		s.Logger.Error("stats report", "err", err)
		writeError(w, http.StatusInternalServerError, "error loading stats")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// apply runs one observer command and reports whether it was known.
func (s *Server) apply(cmd string) bool {
	switch cmd {
	case wshub.CmdPause:
		s.Coord.Pause()
	case wshub.CmdResume:
		s.Coord.Resume()
	case wshub.CmdToggle:
		s.Coord.Toggle()
	case wshub.CmdStop:
		s.Coord.Stop()
	case wshub.CmdReset:
		s.Coord.RequestReset()
	case wshub.CmdStatus:
	default:
		return false
	}
	return true
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	if action == wshub.CmdStatus || !s.apply(action) {
		writeError(w, http.StatusNotFound, "unknown action "+strconv.Quote(action))
		return
	}
	s.Logger.Info("control request", "action", action, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, s.Coord.Status())
}

// handleClientSignal lets the launcher report a client that needs a human
// (exception) and one that is usable again (recovered).
func (s *Server) handleClientSignal(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	id := party.ClientID(n)

	switch r.PathValue("signal") {
	case "exception":
		kind := r.URL.Query().Get("kind")
		if kind == "" {
			kind = "unknown"
		}
		s.Coord.NotifyException(id, kind)
	case "recovered":
		s.Coord.NotifyRecovered(id)
	default:
		writeError(w, http.StatusNotFound, "unknown signal")
		return
	}
	writeJSON(w, http.StatusOK, s.Coord.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	var kinds []events.Kind
	for _, k := range r.URL.Query()["kind"] {
		kinds = append(kinds, events.Kind(k))
	}
	sub := s.Broadcaster.Subscribe(kinds...)
	defer s.Broadcaster.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + string(ev.Kind) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// forward relays broadcaster events to websocket observers until ctx ends.
func (s *Server) forward(ctx context.Context) {
	sub := s.Broadcaster.Subscribe()
	defer s.Broadcaster.Unsubscribe(sub)
	s.Hub.Forward(ctx, sub)
}
