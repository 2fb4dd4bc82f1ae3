package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loancrm_backend/internal/events"
	apphttp "loancrm_backend/internal/http"
	"loancrm_backend/internal/http/router"
	"loancrm_backend/internal/reconcile"
	"loancrm_backend/internal/timeslots"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/config"
	"loancrm_backend/platform/db"
	"loancrm_backend/platform/logger"
	"loancrm_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	subscribeAudit(eventBus, log)
	val := validator.New()
	clk := clock.Real{}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	timeslotsModule := timeslots.NewModule(pool, clk, val)
	reconcileModule := reconcile.NewModule(pool, clk, eventBus, val, log, cfg)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			timeslotsModule,
			reconcileModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// subscribeAudit logs the engine's outcome events so every run leaves a
// trail even when the webhook caller discards the response.
func subscribeAudit(bus events.Bus, log *logger.Logger) {
	bus.Subscribe(events.ReconciliationRunCompleted{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if run, ok := e.(events.ReconciliationRunCompleted); ok {
			log.Info("reconciliation run completed",
				"mode", run.Mode,
				"processed", run.Processed,
				"successful", run.Successful,
				"failed", run.Failed,
			)
		}
		return nil
	}))
	bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if lead, ok := e.(events.LeadCreated); ok {
			log.Info("lead created by engine", "leadId", lead.LeadID, "source", lead.Source)
		}
		return nil
	}))
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
