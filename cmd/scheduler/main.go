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
	"loancrm_backend/internal/reconcile"
	"loancrm_backend/internal/scheduler"
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
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	clk := clock.Real{}

	// Worker-side engine wiring; no HTTP routes are registered here.
	reconcileModule := reconcile.NewModule(pool, clk, eventBus, val, log, cfg)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	go runTimeoutSweepLoop(ctx, cfg, client, log)
	go runEndOfDayLoop(ctx, cfg, clk, client, log)

	worker, err := scheduler.NewWorker(cfg, cfg, reconcileModule.Runner, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

// runTimeoutSweepLoop enqueues a timeout sweep at the configured interval.
func runTimeoutSweepLoop(ctx context.Context, cfg *config.Config, client *scheduler.Client, log *logger.Logger) {
	interval := cfg.GetTimeoutSweepInterval()
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := scheduler.TimeoutSweepPayload{ThresholdHours: cfg.GetSweepThresholdHours()}
			if err := client.EnqueueTimeoutSweep(ctx, payload); err != nil {
				log.Error("failed to enqueue timeout sweep", "error", err)
			}
		}
	}
}

// runEndOfDayLoop schedules the finalization sweep once per Singapore day at
// the configured hour.
func runEndOfDayLoop(ctx context.Context, cfg *config.Config, clk clock.Clock, client *scheduler.Client, log *logger.Logger) {
	hour := cfg.GetEndOfDayHourSG()
	if hour <= 0 || hour > 23 {
		hour = 21
	}

	for {
		now := clk.Now().In(clock.Singapore)
		runAt := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, clock.Singapore)
		if !runAt.After(now) {
			runAt = runAt.AddDate(0, 0, 1)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(runAt.Sub(now)):
		}

		payload := scheduler.EndOfDayPayload{Date: clk.TodaySingapore().Format("2006-01-02")}
		if err := client.ScheduleEndOfDay(ctx, payload, clk.Now()); err != nil {
			log.Error("failed to schedule end-of-day sweep", "error", err)
		}
	}
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
