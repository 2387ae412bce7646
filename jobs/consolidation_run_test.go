package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/consolidate/internal/shared"
)

type fakeExecutor struct {
	executed []int64
	err      error
}

func (f *fakeExecutor) ExecuteRun(ctx context.Context, runID int64) error {
	f.executed = append(f.executed, runID)
	return f.err
}

func runTask(t *testing.T, runID int64) *asynq.Task {
	t.Helper()
	task, err := NewConsolidationRunTask(runID)
	require.NoError(t, err)
	return task
}

func TestConsolidationRunTaskPayload(t *testing.T) {
	task := runTask(t, 42)
	require.Equal(t, TaskConsolidationRun, task.Type())

	var payload ConsolidationRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(42), payload.RunID)

	_, err := NewConsolidationRunTask(0)
	require.Error(t, err)
}

func TestConsolidationRunHandleExecutes(t *testing.T) {
	exec := &fakeExecutor{}
	job := NewConsolidationRunJob(exec, nil, nil)

	require.NoError(t, job.Handle(context.Background(), runTask(t, 7)))
	require.Equal(t, []int64{7}, exec.executed)
}

func TestConsolidationRunHandleBadPayloadSkipsRetry(t *testing.T) {
	exec := &fakeExecutor{}
	job := NewConsolidationRunJob(exec, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskConsolidationRun, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, exec.executed)
}

func TestConsolidationRunHandleFailureSkipsRetry(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("trial balance missing")}
	job := NewConsolidationRunJob(exec, nil, nil)

	err := job.Handle(context.Background(), runTask(t, 7))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestConsolidationRunHandleLockContentionRetries(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("run 7: %w", shared.ErrLockHeld)}
	job := NewConsolidationRunJob(exec, nil, nil)

	err := job.Handle(context.Background(), runTask(t, 7))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry), "lock contention stays retryable")
}
