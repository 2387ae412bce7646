package consol

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/consolidate/internal/intercompany"
	"github.com/odyssey-erp/consolidate/internal/shared"
)

type memoryRepo struct {
	groups map[int64]string
	member map[int64][]MemberCompany
	runs   map[int64]Run
	steps  []Step
	tbs    map[int64]TrialBalance
	open   map[int64][]intercompany.Transaction
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		groups: map[int64]string{1: "USD"},
		member: make(map[int64][]MemberCompany),
		runs:   make(map[int64]Run),
		tbs:    make(map[int64]TrialBalance),
		open:   make(map[int64][]intercompany.Transaction),
	}
}

func (m *memoryRepo) Group(ctx context.Context, groupID int64) (string, string, error) {
	ccy, ok := m.groups[groupID]
	if !ok {
		return "", "", ErrGroupNotFound
	}
	return fmt.Sprintf("Group %d", groupID), ccy, nil
}

func (m *memoryRepo) Members(ctx context.Context, groupID int64) ([]MemberCompany, error) {
	return m.member[groupID], nil
}

func (m *memoryRepo) InsertRun(ctx context.Context, in StartInput) (Run, error) {
	m.nextID++
	run := Run{
		ID:        m.nextID,
		GroupID:   in.GroupID,
		PeriodRef: in.PeriodRef,
		AsOf:      in.AsOf,
		Status:    RunPending,
		CreatedAt: time.Now(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memoryRepo) GetRun(ctx context.Context, runID int64) (Run, error) {
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

func (m *memoryRepo) ActiveRun(ctx context.Context, groupID int64, periodRef string) (Run, bool, error) {
	for _, run := range m.runs {
		if run.GroupID == groupID && run.PeriodRef == periodRef && !run.Status.Terminal() {
			return run, true, nil
		}
	}
	return Run{}, false, nil
}

func (m *memoryRepo) TransitionRun(ctx context.Context, runID int64, from, to RunStatus, errMsg string) error {
	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if run.Status != from || !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, to)
	}
	run.Status = to
	run.Error = errMsg
	m.runs[runID] = run
	return nil
}

func (m *memoryRepo) AppendStep(ctx context.Context, step Step) error {
	m.steps = append(m.steps, step)
	return nil
}

func (m *memoryRepo) SaveResult(ctx context.Context, tb TrialBalance, open []intercompany.Transaction) error {
	m.tbs[tb.RunID] = tb
	m.open[tb.RunID] = open
	return nil
}

func (m *memoryRepo) GetTrialBalance(ctx context.Context, runID int64) (TrialBalance, error) {
	tb, ok := m.tbs[runID]
	if !ok {
		return TrialBalance{}, ErrRunNotFound
	}
	return tb, nil
}

func (m *memoryRepo) PriorTrialBalance(ctx context.Context, groupID int64, beforePeriodRef string) (*TrialBalance, error) {
	var prior *TrialBalance
	for id, tb := range m.tbs {
		if tb.GroupID != groupID || tb.PeriodRef >= beforePeriodRef {
			continue
		}
		if m.runs[id].Status != RunCompleted {
			continue
		}
		if prior == nil || tb.PeriodRef > prior.PeriodRef {
			copied := tb
			prior = &copied
		}
	}
	return prior, nil
}

func (m *memoryRepo) OpenItems(ctx context.Context, runID int64) ([]intercompany.Transaction, error) {
	return m.open[runID], nil
}

type memoryLocker struct {
	held      map[string]string
	acquires  int
	rejectAll bool
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: make(map[string]string)}
}

func (l *memoryLocker) Acquire(ctx context.Context, key, token string) error {
	if l.rejectAll {
		return shared.ErrLockHeld
	}
	if _, taken := l.held[key]; taken {
		return shared.ErrLockHeld
	}
	l.held[key] = token
	l.acquires++
	return nil
}

func (l *memoryLocker) Release(ctx context.Context, key, token string) error {
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func startInput() StartInput {
	return StartInput{
		GroupID:   1,
		PeriodRef: "2025-06",
		AsOf:      time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func newTestService(repo *memoryRepo, balances *stubBalances, matches *stubMatches, locker Locker) *Service {
	return NewService(repo, newTestOrchestrator(balances, matches), locker, nil, nil)
}

func TestStartRunIdempotentWhileActive(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubBalances{}, &stubMatches{}, newMemoryLocker())
	ctx := context.Background()

	first, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.Equal(t, RunPending, first.Status)

	second, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// A different period gets its own run.
	other := startInput()
	other.PeriodRef = "2025-07"
	third, err := svc.StartRun(ctx, other)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, third.ID)
}

func TestStartRunUnknownGroup(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubBalances{}, &stubMatches{}, newMemoryLocker())
	in := startInput()
	in.GroupID = 99
	_, err := svc.StartRun(context.Background(), in)
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCancelOnlyPendingRuns(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubBalances{}, &stubMatches{}, newMemoryLocker())
	ctx := context.Background()

	run, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, run.ID))

	status, err := svc.GetRunStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunCancelled, status)

	// Cancelled is terminal.
	require.ErrorIs(t, svc.Cancel(ctx, run.ID), ErrRunNotCancellable)
}

func TestExecuteRunCompletes(t *testing.T) {
	repo := newMemoryRepo()
	balances, members := groupFixture()
	repo.member[1] = members
	locker := newMemoryLocker()
	svc := newTestService(repo, balances, &stubMatches{txs: []intercompany.Transaction{matchedFee()}}, locker)
	ctx := context.Background()

	run, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.NoError(t, svc.ExecuteRun(ctx, run.ID))

	status, err := svc.GetRunStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunCompleted, status)

	tb, err := svc.GetConsolidatedTrialBalance(ctx, run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, tb.Lines)
	require.Equal(t, "USD", tb.Currency)

	require.Equal(t, 1, locker.acquires)
	require.Empty(t, locker.held, "lock released after the run")
	require.Len(t, repo.steps, 5)
	for i, step := range repo.steps {
		require.Equal(t, run.ID, step.RunID)
		require.Equal(t, i+1, step.Seq)
		require.Equal(t, StepOK, step.Status)
	}

	// A completed run is terminal, so a fresh StartRun creates a new run.
	again, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.NotEqual(t, run.ID, again.ID)
}

func TestExecuteRunFailureIsTerminal(t *testing.T) {
	repo := newMemoryRepo()
	balances, members := groupFixture()
	delete(balances.byCompany, 2)
	repo.member[1] = members
	svc := newTestService(repo, balances, &stubMatches{}, newMemoryLocker())
	ctx := context.Background()

	run, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.Error(t, svc.ExecuteRun(ctx, run.ID))

	got, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunFailed, got.Status)
	require.NotEmpty(t, got.Error)

	_, err = svc.GetConsolidatedTrialBalance(ctx, run.ID)
	require.ErrorIs(t, err, ErrRunNotCompleted)

	// No retry from a terminal state; the fix is a new run.
	require.NoError(t, svc.ExecuteRun(ctx, run.ID))
	got, err = svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunFailed, got.Status)
}

func TestExecuteRunSkipsNonPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubBalances{}, &stubMatches{}, newMemoryLocker())
	ctx := context.Background()

	run, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, run.ID))
	require.NoError(t, svc.ExecuteRun(ctx, run.ID))

	status, err := svc.GetRunStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunCancelled, status)
}

func TestExecuteRunBlockedByLock(t *testing.T) {
	repo := newMemoryRepo()
	balances, members := groupFixture()
	repo.member[1] = members
	locker := newMemoryLocker()
	locker.rejectAll = true
	svc := newTestService(repo, balances, &stubMatches{}, locker)
	ctx := context.Background()

	run, err := svc.StartRun(ctx, startInput())
	require.NoError(t, err)

	err = svc.ExecuteRun(ctx, run.ID)
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrLockHeld))

	// The run was never started and stays executable.
	status, err := svc.GetRunStatus(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, RunPending, status)
}
