package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	jobmetrics "github.com/odyssey-erp/consolidate/internal/jobs"
)

// ReconciliationSweepPayload configures the sweep window. An empty month
// means the month containing the execution time.
type ReconciliationSweepPayload struct {
	Month string `json:"month,omitempty"`
}

// ReconciliationSource lists open intercompany items per group.
type ReconciliationSource interface {
	Reconciliation(ctx context.Context, groupID int64, start, end time.Time) ([]intercompany.Transaction, error)
}

// GroupLister enumerates the consolidation groups to sweep.
type GroupLister interface {
	ListGroupIDs(ctx context.Context) ([]int64, error)
}

// ReconciliationSweepJob walks every group's open items for the month and
// logs the backlog, so unmatched transactions surface before period close
// instead of during the consolidation run.
type ReconciliationSweepJob struct {
	Matches ReconciliationSource
	Groups  GroupLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReconciliationSweepJob constructs the job handler.
func NewReconciliationSweepJob(matches ReconciliationSource, groups GroupLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconciliationSweepJob {
	return &ReconciliationSweepJob{
		Matches: matches,
		Groups:  groups,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// NewReconciliationSweepTask creates the Asynq task, typically registered on
// a cron schedule.
func NewReconciliationSweepTask(month string) (*asynq.Task, error) {
	body, err := json.Marshal(ReconciliationSweepPayload{Month: month})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconciliationSweep, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the sweep.
func (j *ReconciliationSweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Matches == nil || j.Groups == nil {
		return errors.New("reconciliation sweep: dependencies not configured")
	}
	var payload ReconciliationSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReconciliationSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start, end, err := j.window(payload.Month)
	if err != nil {
		resultErr = asynq.SkipRetry
		j.log().Error("parse sweep month", slog.String("month", payload.Month), slog.Any("error", err))
		return resultErr
	}

	groupIDs, err := j.Groups.ListGroupIDs(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("list groups", slog.Any("error", err))
		return resultErr
	}

	for _, groupID := range groupIDs {
		open, err := j.Matches.Reconciliation(ctx, groupID, start, end)
		if err != nil {
			resultErr = err
			j.log().Error("list open items", slog.Int64("group_id", groupID), slog.Any("error", err))
			return resultErr
		}
		unmatched, unapproved := 0, 0
		for _, tx := range open {
			if tx.Status == intercompany.StatusPartiallyMatched {
				unapproved++
			} else {
				unmatched++
			}
		}
		if len(open) == 0 {
			continue
		}
		j.log().Warn("open intercompany items",
			slog.Int64("group_id", groupID),
			slog.String("month", start.Format("2006-01")),
			slog.Int("unmatched", unmatched),
			slog.Int("unapproved_variances", unapproved))
	}
	return resultErr
}

func (j *ReconciliationSweepJob) window(month string) (time.Time, time.Time, error) {
	ref := j.now()
	if month != "" {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		ref = parsed
	}
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end, nil
}

func (j *ReconciliationSweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconciliationSweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconciliationSweep))
	}
	return slog.Default().With(slog.String("job", TaskReconciliationSweep))
}

func (j *ReconciliationSweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ReconciliationSweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
