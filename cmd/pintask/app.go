package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/pintask/internal/api"
	"github.com/phrazzld/pintask/internal/config"
	"github.com/phrazzld/pintask/internal/events"
	"github.com/phrazzld/pintask/internal/lifecycle"
	"github.com/phrazzld/pintask/internal/location"
	"github.com/phrazzld/pintask/internal/notify"
	"github.com/phrazzld/pintask/internal/proximity"
	"github.com/phrazzld/pintask/internal/scheduler"
	"github.com/phrazzld/pintask/internal/store"
)

// application holds the wired components so they can be started and shut
// down together.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	now    func() time.Time

	repo       store.TaskRepository
	emitter    *events.InMemoryEventEmitter
	inbox      *notify.Inbox
	engine     *lifecycle.Engine
	monitor    *proximity.Monitor
	provider   *location.PushProvider
	tracker    *location.Tracker
	background *scheduler.TimerScheduler
	scheduler  *scheduler.Scheduler
}

// newApplication wires every component over repo. db may be nil; it is only
// used for health checks and is closed by shutdown. A nil now uses time.Now.
func newApplication(
	cfg *config.Config,
	logger *slog.Logger,
	repo store.TaskRepository,
	db *sql.DB,
	now func() time.Time,
) (*application, error) {
	if now == nil {
		now = time.Now
	}
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		now:      now,
		repo:     repo,
		emitter:  events.NewInMemoryEventEmitter(logger),
		inbox:    notify.NewInbox(notify.DefaultCapacity, logger),
		provider: &location.PushProvider{},
	}

	var err error
	app.engine, err = lifecycle.NewEngine(repo, app.emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle engine: %w", err)
	}

	mode, err := proximity.ParseCompletionMode(cfg.Proximity.CompletionMode)
	if err != nil {
		return nil, err
	}
	app.monitor, err = proximity.NewMonitor(repo, app.emitter, mode, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create proximity monitor: %w", err)
	}

	app.tracker = location.NewTracker(app.provider, app.monitor, app.emitter, logger)

	schedCfg := scheduler.Config{
		HeartbeatInterval:  cfg.Scheduler.HeartbeatInterval,
		ProcessingInterval: cfg.Scheduler.ProcessingInterval,
		RefreshInterval:    cfg.Scheduler.RefreshInterval,
		ExpirationWindow:   cfg.Scheduler.ExpirationWindow,
	}
	app.background = scheduler.NewTimerScheduler(schedCfg.ExpirationWindow, logger)
	app.scheduler, err = scheduler.New(app.engine, app.monitor, app.background, app.emitter,
		schedCfg, logger, scheduler.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	app.emitter.RegisterHandler(app.inbox)
	app.emitter.RegisterHandler(app.monitor)
	app.emitter.RegisterHandler(events.HandlerFunc(app.logLedgerEvent))

	return app, nil
}

// start loads the watched regions, registers the background triggers and runs
// the catch-up reconciliation for tasks that expired while the service was down.
func (app *application) start(ctx context.Context) error {
	if err := app.monitor.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load regions: %w", err)
	}
	if err := app.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if _, err := app.scheduler.RunOnce(ctx, scheduler.TriggerStartup); err != nil {
		// Alerted by the scheduler; the next trigger retries.
		app.logger.Warn("startup reconciliation failed", slog.String("error", err.Error()))
	}
	return nil
}

// setupRouter creates the HTTP handler for the wired components.
func (app *application) setupRouter() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Tasks:          api.NewTaskHandler(app.engine, app.now, app.logger),
		Location:       api.NewLocationHandler(app.tracker, app.monitor, app.now, app.logger),
		App:            api.NewAppHandler(app.scheduler, app.inbox, app.logger),
		Health:         app.healthCheck,
		AllowedOrigins: app.config.Server.AllowedOrigins,
	}, app.logger)
}

func (app *application) healthCheck(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	return app.db.PingContext(ctx)
}

// logLedgerEvent records wager movements in the service log.
func (app *application) logLedgerEvent(ctx context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeWagerForfeited:
		var payload events.WagerForfeitedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		app.logger.Info("wager forfeited",
			slog.String("task_id", payload.TaskID.String()),
			slog.String("amount", payload.Amount.StringFixed(2)))
	case events.TypeWagerRefunded:
		var payload events.WagerRefundedPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		app.logger.Info("wager refunded",
			slog.String("task_id", payload.TaskID.String()),
			slog.String("amount", payload.Amount.StringFixed(2)))
	}
	return nil
}

// shutdown stops the triggers and releases the database.
func (app *application) shutdown() {
	app.scheduler.Stop()
	app.background.Stop()
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("application stopped")
}
