package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"loancrm_backend/internal/reconcile/engine"
	"loancrm_backend/platform/config"
	"loancrm_backend/platform/logger"
)

// Worker consumes sweep tasks and runs them through the engine's runner.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *engine.Runner
	log    *logger.Logger

	sweepThresholdHours float64
}

func NewWorker(cfg config.SchedulerConfig, rcfg config.ReconcileConfig, runner *engine.Runner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:              server,
		mux:                 mux,
		runner:              runner,
		log:                 log,
		sweepThresholdHours: rcfg.GetSweepThresholdHours(),
	}

	mux.HandleFunc(TaskTimeoutSweep, w.handleTimeoutSweep)
	mux.HandleFunc(TaskEndOfDay, w.handleEndOfDay)

	return w, nil
}

func (w *Worker) handleTimeoutSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTimeoutSweepPayload(task)
	if err != nil {
		return err
	}

	hours := payload.ThresholdHours
	if hours <= 0 {
		hours = w.sweepThresholdHours
	}

	result := w.runner.RunTimeoutSweep(ctx, engine.DurationFromHours(hours))
	w.log.Info("timeout sweep completed",
		"thresholdHours", hours,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return nil
}

func (w *Worker) handleEndOfDay(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseEndOfDayPayload(task)
	if err != nil {
		return err
	}

	result := w.runner.Run(ctx, engine.ModeEndOfDay, nil, 0)
	w.log.Info("end-of-day sweep completed",
		"date", payload.Date,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
