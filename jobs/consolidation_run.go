package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/consolidate/internal/jobs"
	"github.com/odyssey-erp/consolidate/internal/shared"
)

// ConsolidationRunPayload identifies the run the worker should execute.
type ConsolidationRunPayload struct {
	RunID int64 `json:"run_id"`
}

// RunExecutor drives one consolidation run to a terminal state.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, runID int64) error
}

// ConsolidationRunJob executes pending consolidation runs off the queue.
type ConsolidationRunJob struct {
	Service RunExecutor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewConsolidationRunJob constructs the job handler.
func NewConsolidationRunJob(service RunExecutor, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidationRunJob {
	return &ConsolidationRunJob{Service: service, Logger: logger, Metrics: metrics}
}

// NewConsolidationRunTask creates the Asynq task for one run.
func NewConsolidationRunTask(runID int64) (*asynq.Task, error) {
	if runID <= 0 {
		return nil, errors.New("consolidation run: run id required")
	}
	body, err := json.Marshal(ConsolidationRunPayload{RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidationRun, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the consolidation run job. Re-delivery of an already
// executed run is harmless: the service skips any run no longer pending.
func (j *ConsolidationRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("consolidation run: dependencies not configured")
	}
	var payload ConsolidationRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskConsolidationRun)
	start := time.Now()
	err := j.Service.ExecuteRun(ctx, payload.RunID)
	err = tracker.End(err)
	if err != nil {
		j.log().Error("execute consolidation run",
			slog.Int64("run_id", payload.RunID), slog.Any("error", err))
		if errors.Is(err, shared.ErrLockHeld) {
			// Another worker owns the (group, period) lock; retry later.
			return err
		}
		// The run is already marked failed; retrying the task cannot
		// revive it.
		return errors.Join(err, asynq.SkipRetry)
	}
	j.log().Info("consolidation run task done",
		slog.Int64("run_id", payload.RunID),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ConsolidationRunJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ConsolidationRunJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidationRun))
	}
	return slog.Default().With(slog.String("job", TaskConsolidationRun))
}
