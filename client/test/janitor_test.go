package test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_LeavesHealthyJobsAlone(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()

	_, err := h.jm.ScheduleInterval(ctx, 1000, targetName, nil)
	require.NoError(t, err)

	n, err := h.jm.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, h.backend.TaskCount())
}

func TestSweep_RearmsDeadTickOnPhase(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()

	id, err := h.jm.ScheduleInterval(ctx, 1000, targetName, nil)
	require.NoError(t, err)
	tickID := *h.job(t, id).PendingTickTaskID
	h.backend.SetTaskStatus(tickID, state.StatusDead)

	h.clock.Set(t0.Add(3500 * time.Millisecond))
	n, err := h.jm.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := h.job(t, id)
	require.NotEqual(t, tickID, *job.PendingTickTaskID)
	tick := h.task(t, *job.PendingTickTaskID)
	assert.Equal(t, state.StatusQueued, tick.Status)
	assert.True(t, tick.ScheduledAt.Equal(t0.Add(4*time.Second)))
}

func TestSweep_RearmsCronJobWithoutTick(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, start)
	ctx := context.Background()

	id, err := h.jm.Register(ctx, types.Cron("0 0 * * *"), targetName, nil)
	require.NoError(t, err)
	job := h.job(t, id)
	require.NoError(t, h.backend.Jobs().UpdateTaskPointers(ctx, id, job.Version, nil, nil))

	h.clock.Set(time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC))
	n, err := h.jm.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tick := h.task(t, *h.job(t, id).PendingTickTaskID)
	assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), tick.ScheduledAt)
}

func TestSweep_RepairedJobKeepsTicking(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()

	id, err := h.jm.ScheduleInterval(ctx, 1000, targetName, nil)
	require.NoError(t, err)
	require.NoError(t, h.jm.RemoveEnqueue(ctx, *h.job(t, id).PendingTickTaskID))

	n, err := h.jm.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	h.clock.Set(t0.Add(time.Second))
	assert.Equal(t, 1, h.runDue(t))
	assert.Len(t, h.backend.TasksNamed(targetName), 1)
}

func TestStartJanitor_SkipsWithoutLock(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()

	id, err := h.jm.ScheduleInterval(ctx, 1000, targetName, nil)
	require.NoError(t, err)
	tickID := *h.job(t, id).PendingTickTaskID
	h.backend.SetTaskStatus(tickID, state.StatusDead)

	var attempts int32
	h.lock.TryAcquireFunc = func(ctx context.Context, lockID int) (bool, error) {
		assert.Equal(t, constants.JanitorLock, lockID)
		atomic.AddInt32(&attempts, 1)
		return false, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	h.recurring.StartJanitor(runCtx, 10*time.Millisecond)

	assert.Greater(t, atomic.LoadInt32(&attempts), int32(0))
	assert.Equal(t, tickID, *h.job(t, id).PendingTickTaskID)
}

func TestStartJanitor_SweepsUnderLock(t *testing.T) {
	h := newHarness(t, t0)
	ctx := context.Background()

	id, err := h.jm.ScheduleInterval(ctx, 1000, targetName, nil)
	require.NoError(t, err)
	tickID := *h.job(t, id).PendingTickTaskID
	h.backend.SetTaskStatus(tickID, state.StatusDead)

	var released int32
	h.lock.ReleaseFunc = func(ctx context.Context, lockID int) error {
		atomic.AddInt32(&released, 1)
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	h.recurring.StartJanitor(runCtx, 10*time.Millisecond)

	assert.Greater(t, atomic.LoadInt32(&released), int32(0))
	assert.NotEqual(t, tickID, *h.job(t, id).PendingTickTaskID)
}
