package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/shared"
)

// DBRepository defines the persistence behaviour required by the service.
type DBRepository interface {
	Group(ctx context.Context, groupID int64) (name, reportingCurrency string, err error)
	Members(ctx context.Context, groupID int64) ([]MemberCompany, error)
	InsertRun(ctx context.Context, in StartInput) (Run, error)
	GetRun(ctx context.Context, runID int64) (Run, error)
	ActiveRun(ctx context.Context, groupID int64, periodRef string) (Run, bool, error)
	TransitionRun(ctx context.Context, runID int64, from, to RunStatus, errMsg string) error
	AppendStep(ctx context.Context, step Step) error
	SaveResult(ctx context.Context, tb TrialBalance, open []intercompany.Transaction) error
	GetTrialBalance(ctx context.Context, runID int64) (TrialBalance, error)
	PriorTrialBalance(ctx context.Context, groupID int64, beforePeriodRef string) (*TrialBalance, error)
	OpenItems(ctx context.Context, runID int64) ([]intercompany.Transaction, error)
}

// Locker serialises run execution per (group, period) across processes.
type Locker interface {
	Acquire(ctx context.Context, key, token string) error
	Release(ctx context.Context, key, token string) error
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the consolidation run operations and owns the run state
// machine. All transitions are one-directional and guarded in storage.
type Service struct {
	repo         DBRepository
	orchestrator *Orchestrator
	locker       Locker
	audit        AuditRecorder
	logger       *slog.Logger
	now          func() time.Time
}

// NewService constructs a consolidation run service.
func NewService(repo DBRepository, orchestrator *Orchestrator, locker Locker, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		orchestrator: orchestrator,
		locker:       locker,
		audit:        audit,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// StartRun creates a pending run for the group and period. While a run for
// the same (group, period) is still active the call is idempotent and returns
// that run instead of creating a second one.
func (s *Service) StartRun(ctx context.Context, in StartInput) (Run, error) {
	if s == nil || s.repo == nil {
		return Run{}, errors.New("consol: service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Run{}, err
	}
	if _, _, err := s.repo.Group(ctx, in.GroupID); err != nil {
		return Run{}, err
	}
	if active, ok, err := s.repo.ActiveRun(ctx, in.GroupID, in.PeriodRef); err != nil {
		return Run{}, err
	} else if ok {
		return active, nil
	}
	run, err := s.repo.InsertRun(ctx, in)
	if err != nil {
		return Run{}, err
	}
	s.recordAudit(ctx, run, "consol_run_start")
	return run, nil
}

// GetRunStatus returns the current status of a run.
func (s *Service) GetRunStatus(ctx context.Context, runID int64) (RunStatus, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	return run.Status, nil
}

// GetRun returns the full run record.
func (s *Service) GetRun(ctx context.Context, runID int64) (Run, error) {
	return s.repo.GetRun(ctx, runID)
}

// Cancel aborts a run that has not started. Once InProgress the run always
// reaches a terminal state on its own.
func (s *Service) Cancel(ctx context.Context, runID int64) error {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != RunPending {
		return ErrRunNotCancellable
	}
	if err := s.repo.TransitionRun(ctx, runID, RunPending, RunCancelled, ""); err != nil {
		return err
	}
	run.Status = RunCancelled
	s.recordAudit(ctx, run, "consol_run_cancel")
	return nil
}

// GetConsolidatedTrialBalance returns the immutable trial balance of a
// completed run.
func (s *Service) GetConsolidatedTrialBalance(ctx context.Context, runID int64) (TrialBalance, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return TrialBalance{}, err
	}
	if run.Status != RunCompleted {
		return TrialBalance{}, fmt.Errorf("%w: run %d is %s", ErrRunNotCompleted, runID, run.Status)
	}
	return s.repo.GetTrialBalance(ctx, runID)
}

// TrialBalanceWithPrior returns a completed run's trial balance together with
// the group's most recent earlier completed trial balance. The prior balance
// is nil for a group's first consolidated period.
func (s *Service) TrialBalanceWithPrior(ctx context.Context, runID int64) (TrialBalance, *TrialBalance, error) {
	tb, err := s.GetConsolidatedTrialBalance(ctx, runID)
	if err != nil {
		return TrialBalance{}, nil, err
	}
	prior, err := s.repo.PriorTrialBalance(ctx, tb.GroupID, tb.PeriodRef)
	if err != nil {
		return TrialBalance{}, nil, err
	}
	return tb, prior, nil
}

// OpenItems returns the reconciliation list captured by a completed run.
func (s *Service) OpenItems(ctx context.Context, runID int64) ([]intercompany.Transaction, error) {
	return s.repo.OpenItems(ctx, runID)
}

// ExecuteRun drives a pending run to a terminal state. It is invoked by the
// background worker; a run found already terminal or in progress is left
// untouched.
func (s *Service) ExecuteRun(ctx context.Context, runID int64) error {
	if s == nil || s.repo == nil || s.orchestrator == nil {
		return errors.New("consol: service not initialised")
	}
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != RunPending {
		s.log().Info("run not pending, skipping execution",
			slog.Int64("run_id", runID), slog.String("status", string(run.Status)))
		return nil
	}

	lockKey := shared.ConsolidationLockKey(run.GroupID, run.PeriodRef)
	token := uuid.NewString()
	if s.locker != nil {
		if err := s.locker.Acquire(ctx, lockKey, token); err != nil {
			return fmt.Errorf("consol: run %d: %w", runID, err)
		}
		defer func() {
			_ = s.locker.Release(context.WithoutCancel(ctx), lockKey, token)
		}()
	}

	if err := s.repo.TransitionRun(ctx, runID, RunPending, RunInProgress, ""); err != nil {
		// Lost the race, typically against Cancel.
		return err
	}
	run.Status = RunInProgress

	_, reportingCurrency, err := s.repo.Group(ctx, run.GroupID)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	members, err := s.repo.Members(ctx, run.GroupID)
	if err != nil {
		return s.fail(ctx, run, err)
	}

	outcome, err := s.orchestrator.Execute(ctx, run, reportingCurrency, members, s.stepSink(run.ID))
	if err != nil {
		return s.fail(ctx, run, err)
	}

	if err := s.repo.SaveResult(ctx, outcome.TrialBalance, outcome.OpenItems); err != nil {
		return s.fail(ctx, run, err)
	}
	if err := s.repo.TransitionRun(ctx, runID, RunInProgress, RunCompleted, ""); err != nil {
		return err
	}
	run.Status = RunCompleted
	s.recordAudit(ctx, run, "consol_run_complete")
	s.log().Info("consolidation run completed",
		slog.Int64("run_id", runID),
		slog.Int64("group_id", run.GroupID),
		slog.String("period", run.PeriodRef),
		slog.Int("lines", len(outcome.TrialBalance.Lines)),
		slog.Int("open_items", len(outcome.OpenItems)))
	return nil
}

// fail moves the run to Failed with the originating error attached. The
// original error is returned so the worker can surface it.
func (s *Service) fail(ctx context.Context, run Run, cause error) error {
	if err := s.repo.TransitionRun(ctx, run.ID, RunInProgress, RunFailed, cause.Error()); err != nil {
		s.log().Error("record run failure", slog.Int64("run_id", run.ID), slog.Any("error", err))
	}
	run.Status = RunFailed
	s.recordAudit(ctx, run, "consol_run_fail")
	s.log().Error("consolidation run failed",
		slog.Int64("run_id", run.ID),
		slog.Int64("group_id", run.GroupID),
		slog.String("period", run.PeriodRef),
		slog.Any("error", cause))
	return cause
}

type stepRecorder struct {
	service *Service
	runID   int64
	seq     int
}

func (r *stepRecorder) Record(ctx context.Context, name string, status StepStatus, detail string) {
	r.seq++
	err := r.service.repo.AppendStep(ctx, Step{
		RunID:  r.runID,
		Seq:    r.seq,
		Name:   name,
		Status: status,
		Detail: detail,
		At:     r.service.now(),
	})
	if err != nil {
		r.service.log().Warn("append run step", slog.Int64("run_id", r.runID), slog.Any("error", err))
	}
}

func (s *Service) stepSink(runID int64) StepSink {
	return &stepRecorder{service: s, runID: runID}
}

func (s *Service) recordAudit(ctx context.Context, run Run, action string) {
	if s == nil || s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "consolidation_runs",
		EntityID: fmt.Sprintf("%d", run.ID),
		Meta: map[string]any{
			"group_id": run.GroupID,
			"period":   run.PeriodRef,
			"status":   string(run.Status),
			"error":    run.Error,
		},
		At: s.now(),
	})
}

func (s *Service) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger.With(slog.String("component", "consol_service"))
	}
	return slog.Default().With(slog.String("component", "consol_service"))
}
