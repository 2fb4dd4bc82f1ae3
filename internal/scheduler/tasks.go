package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskTimeoutSweep marks today's overdue upcoming appointments missed.
const TaskTimeoutSweep = "reconcile.timeout_sweep"

// TaskEndOfDay runs the end-of-day lead status finalization.
const TaskEndOfDay = "reconcile.end_of_day"

type TimeoutSweepPayload struct {
	ThresholdHours float64 `json:"thresholdHours"`
}

type EndOfDayPayload struct {
	// Date is informational only; the sweep always runs over the current
	// Singapore day.
	Date string `json:"date"`
}

func NewTimeoutSweepTask(payload TimeoutSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTimeoutSweep, data), nil
}

func ParseTimeoutSweepPayload(task *asynq.Task) (TimeoutSweepPayload, error) {
	var payload TimeoutSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TimeoutSweepPayload{}, err
	}
	return payload, nil
}

func NewEndOfDayTask(payload EndOfDayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEndOfDay, data), nil
}

func ParseEndOfDayPayload(task *asynq.Task) (EndOfDayPayload, error) {
	var payload EndOfDayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EndOfDayPayload{}, err
	}
	return payload, nil
}
