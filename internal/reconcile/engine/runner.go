package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loancrm_backend/internal/events"
	"loancrm_backend/platform/logger"
)

// Mode selects what a run does with its row batch.
type Mode string

const (
	// ModeLive reconciles each row incrementally.
	ModeLive Mode = "live"
	// ModeEndOfDay ignores the rows and runs the finalization sweep.
	ModeEndOfDay Mode = "end_of_day"
)

func (m Mode) Valid() bool { return m == ModeLive || m == ModeEndOfDay }

// Runner fans a batch of raw rows through the orchestrator with bounded
// concurrency and aggregates per-row results. Row failures never abort the
// batch; every row runs to completion once started.
type Runner struct {
	orch        *Orchestrator
	sweeper     *Sweeper
	bus         events.Bus
	log         *logger.Logger
	concurrency int
}

func NewRunner(orch *Orchestrator, sweeper *Sweeper, bus events.Bus, log *logger.Logger, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Runner{orch: orch, sweeper: sweeper, bus: bus, log: log, concurrency: concurrency}
}

// Run executes one batch. In live mode every row is normalized, matched and
// orchestrated, with liveThreshold bounding how stale an upcoming
// appointment may be before a no-code row times it out; in end-of-day mode
// the rows are ignored and the finalization sweep runs instead.
func (r *Runner) Run(ctx context.Context, mode Mode, rows []map[string]string, liveThreshold time.Duration) RunResult {
	var result RunResult
	switch mode {
	case ModeEndOfDay:
		actions := r.sweeper.SweepEndOfDay(ctx)
		result = RunResult{Processed: len(actions), Actions: actions}
		for _, a := range actions {
			if a.Success {
				result.Succeeded++
			} else {
				result.Failed++
			}
		}
	default:
		result = r.runLive(ctx, rows, liveThreshold)
	}

	r.publishCompleted(ctx, mode, result)
	return result
}

// RunTimeoutSweep runs the mid-day timeout pass on its own, outside any row
// batch. The threshold is a parameter: the live default differs from the
// documented manual-sweep default, and both call sites must keep working.
func (r *Runner) RunTimeoutSweep(ctx context.Context, threshold time.Duration) RunResult {
	actions := r.sweeper.SweepTimeouts(ctx, threshold)
	result := RunResult{Processed: len(actions), Actions: actions}
	for _, a := range actions {
		if a.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	r.publishCompleted(ctx, ModeLive, result)
	return result
}

func (r *Runner) runLive(ctx context.Context, rows []map[string]string, liveThreshold time.Duration) RunResult {
	result := RunResult{Processed: len(rows), Actions: []Action{}}

	var mu sync.Mutex
	rowFailed := make([]bool, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, row := range rows {
		g.Go(func() error {
			actions, failed := r.processRow(gctx, row, liveThreshold)
			mu.Lock()
			result.Actions = append(result.Actions, actions...)
			rowFailed[i] = failed
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	for _, failed := range rowFailed {
		if failed {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result
}

// processRow normalizes and orchestrates one row. A row counts as failed
// when it is rejected outright or when any of its actions failed.
func (r *Runner) processRow(ctx context.Context, row map[string]string, liveThreshold time.Duration) ([]Action, bool) {
	out, err := NormalizeRow(row)
	if err != nil {
		r.log.Warn("row rejected", "error", err)
		return []Action{{Kind: ActionInvalidRow, Message: err.Error()}}, true
	}

	actions := r.orch.Process(ctx, out, liveThreshold)
	failed := false
	for _, a := range actions {
		r.log.ReconcileAction(string(a.Kind), a.Success, a.Message, out.PhoneKey)
		if !a.Success {
			failed = true
		}
	}
	return actions, failed
}

func (r *Runner) publishCompleted(ctx context.Context, mode Mode, result RunResult) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, events.ReconciliationRunCompleted{
		BaseEvent:  events.NewBaseEvent(),
		Mode:       string(mode),
		Processed:  result.Processed,
		Successful: result.Succeeded,
		Failed:     result.Failed,
	})
}
