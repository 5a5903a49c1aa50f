package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"partysync/internal/analytics"
	"partysync/internal/broadcast"
	"partysync/internal/clock"
	"partysync/internal/config"
	"partysync/internal/db"
	"partysync/internal/events"
	"partysync/internal/journal"
	"partysync/internal/metrics"
	"partysync/internal/modes"
	"partysync/internal/orchestrator"
	"partysync/internal/party"
	"partysync/internal/profile"
	"partysync/internal/progress"
	"partysync/internal/routines"
	"partysync/internal/session"
	"partysync/internal/vision"
	"partysync/internal/vision/httpport"
	"partysync/internal/watcher"
	"partysync/internal/wshub"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	recordEvery     = 500 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Run wires the coordinator from cfg and serves the control surface until
// ctx ends or the coordinator finishes the day's work.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	prof, err := profile.Load(cfg.Profile)
	if err != nil {
		return err
	}
	roster, err := party.LoadRoster(cfg.Roster)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	clk := clock.Real()
	m := metrics.New()
	bus := events.NewBus()
	b := broadcast.NewBroadcaster(bus)
	j := journal.New(logger, bus, m, clk)

	srv := &Server{
		Hub:         wshub.NewHub(logger),
		Broadcaster: b,
		Metrics:     m,
		Clock:       clk,
		Logger:      logger.With("component", "server"),
	}

	// Optional database connection; the postgres session backend requires it.
	var sessions session.Store = session.NewFileStore(cfg.SessionPath())
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		switch {
		case err != nil && cfg.SessionBackend == config.BackendPostgres:
			return err
		case err != nil:
			logger.Warn("database unavailable, running without history", "err", err)
		default:
			defer database.Close()
			if err := database.Migrate(ctx); err != nil {
				return err
			}
			srv.DB = database
			srv.Stats = analytics.NewQueries(database)
			if cfg.SessionBackend == config.BackendPostgres {
				sessions = db.NewSessionStore(database)
			}
		}
	} else {
		logger.Info("DATABASE_URL not set, running without database")
	}

	policy, err := modes.NewPolicy(ctx, progress.NewFileStore(cfg.ProgressPath()), prof, clk, logger)
	if err != nil {
		return err
	}
	port := vision.NewGuard(
		httpport.New(cfg.VisionURL, &http.Client{Timeout: cfg.ActionTimeout + cfg.ProbeTimeout}),
		cfg.ProbeTimeout, cfg.ActionTimeout,
	)
	orch := orchestrator.New(orchestrator.Config{
		TickInterval:        cfg.TickInterval,
		LeaderConfirmations: cfg.LeaderConfirmations,
		Parallelism:         cfg.Parallelism,
	}, orchestrator.Deps{
		Roster:   roster,
		Runner:   routines.NewRunner(port, clk, prof, logger),
		Sessions: sessions,
		Policy:   policy,
		Clock:    clk,
		Journal:  j,
	})
	srv.Coord = orch
	srv.Progress = policy
	w := watcher.New(port, prof.Interrupts, roster, clk, j)

	httpSrv := &http.Server{
		Addr:    net.JoinHostPort("0.0.0.0", cfg.Port),
		Handler: srv.Routes(),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return orch.Run(gctx)
	})
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error {
		srv.forward(gctx)
		return nil
	})
	if srv.DB != nil {
		sub := b.Subscribe(events.KindMatchStarted)
		g.Go(func() error {
			defer b.Unsubscribe(sub)
			matchRecorder(gctx, srv.DB, orch.RunID(), sub, recordEvery, logger.With("component", "recorder"))
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("server listening", "addr", "http://localhost:"+cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
