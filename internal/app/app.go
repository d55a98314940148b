// Package app wires the store, allocation engine, availability tracker,
// sweeper, rescore job and HTTP server into one lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"relaydesk/internal/rescore"
	"relaydesk/internal/sweeper"
	"relaydesk/pkg/alloc"
	"relaydesk/pkg/config"
	"relaydesk/pkg/events"
	"relaydesk/pkg/logger"
	"relaydesk/pkg/scoring"
	"relaydesk/pkg/status"
	"relaydesk/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg  *config.Config
	addr string

	version string
	commit  string

	publisher events.Publisher
	engine    *alloc.Engine
	tracker   *status.Tracker
	queue     *status.Queue
	sweep     *sweeper.Sweeper

	srv *http.Server
}

// New validates the config and initializes resources that do not need a
// running context (store, publisher, engine). Call Run to start the
// background jobs and the HTTP server and block until shutdown.
func New(cfg *config.Config, addr, version, commit string) (*App, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	pub, err := buildPublisher(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	weights := func(tenantID int64) scoring.Weights {
		return scoring.Normalize(cfg.WeightsFor(tenantID))
	}

	a := &App{
		cfg:       cfg,
		addr:      addr,
		version:   version,
		commit:    commit,
		publisher: pub,
		engine:    alloc.New(weights, cfg.Allocation.ScanWindow, pub),
		tracker:   status.NewTracker(cfg.Grace.Window.D()),
		sweep:     sweeper.New(cfg.Grace.SweepInterval.D(), pub),
	}
	a.queue = status.NewQueue(
		cfg.StatusQueue.Capacity,
		cfg.StatusQueue.MaxAttempts,
		cfg.StatusQueue.BaseBackoff.D(),
		status.TrackerApply(a.tracker),
	)
	return a, nil
}

// Run starts the background jobs and the HTTP server, then blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	sweepCancel, err := a.sweep.Start(ctx)
	if err != nil {
		return err
	}
	defer sweepCancel()

	if a.cfg.Rescore.Enabled {
		rescoreCancel, err := rescore.Start(ctx, a.cfg.Rescore.Cron, a.engine.Weights)
		if err != nil {
			return err
		}
		defer rescoreCancel()
	}

	a.queue.Start()
	defer a.queue.Stop()

	logger.Info("server_starting", "addr", a.addr, "version", a.version, "commit", a.commit)
	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Warn("http_shutdown_error", "error", err.Error())
		}
	}
	if err := a.publisher.Close(); err != nil {
		logger.Warn("publisher_close_error", "error", err.Error())
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_error", "error", err.Error())
	}
	logger.Info("server_stopped")
}

// buildPublisher returns the AMQP publisher when events are enabled,
// the no-op publisher otherwise.
func buildPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.Nop{}, nil
	}
	pub, err := events.NewAMQP(cfg.Events.URL, cfg.Events.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event broker: %w", err)
	}
	logger.Info("events_enabled", "exchange", cfg.Events.Exchange)
	return pub, nil
}
