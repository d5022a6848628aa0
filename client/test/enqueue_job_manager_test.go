package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/recurfire/client"
	"github.com/RezaEskandarii/recurfire/client/test/mocks"
	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnqueueManager(store *mocks.MockEnqueuedJobStore, lockMgr *mocks.MockDistributedLockManager, jobHandler *config.JobHandler) *client.EnqueueJobsManager {
	if jobHandler == nil {
		jobHandler = config.NewJobHandler()
	}
	return client.NewEnqueueJobsManager(store, lockMgr, jobHandler, "test-instance", nil, nil)
}

func TestEnqueueJobsManager_Enqueue(t *testing.T) {
	ctx := context.Background()
	store := &mocks.MockEnqueuedJobStore{}
	var insertName string
	var insertAttempts int
	var insertArgs map[string]any
	store.InsertFunc = func(ctx context.Context, jobName string, scheduledAt time.Time, maxAttempts int, args map[string]any) (int64, error) {
		insertName = jobName
		insertAttempts = maxAttempts
		insertArgs = args
		return 100, nil
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)

	jobID, err := em.Enqueue(ctx, "EnqueueJob", time.Now().Add(time.Hour), map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), jobID)
	assert.Equal(t, "EnqueueJob", insertName)
	assert.Equal(t, constants.MaxRetryAttempt, insertAttempts)
	assert.Equal(t, "b", insertArgs["a"])
}

func TestEnqueueJobsManager_Enqueue_Error(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.InsertFunc = func(ctx context.Context, jobName string, scheduledAt time.Time, maxAttempts int, args map[string]any) (int64, error) {
		return 0, errors.New("insert error")
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)

	jobID, err := em.Enqueue(context.Background(), "Job", time.Now(), nil)
	assert.Error(t, err)
	assert.Equal(t, int64(0), jobID)
	assert.Contains(t, err.Error(), "insert error")

	_, err = em.Enqueue(context.Background(), "", time.Now(), nil)
	assert.Error(t, err)
}

func TestEnqueueJobsManager_ScheduleAfterUsesClock(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	var gotAt time.Time
	var gotAttempts int
	store.InsertFunc = func(ctx context.Context, jobName string, scheduledAt time.Time, maxAttempts int, args map[string]any) (int64, error) {
		gotAt = scheduledAt
		gotAttempts = maxAttempts
		return 1, nil
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)
	em.SetClock(func() time.Time { return t0 })

	_, err := em.ScheduleAfter(context.Background(), 90*time.Second, "Job", nil)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(90*time.Second), gotAt)
	assert.Equal(t, constants.DispatchMaxAttempts, gotAttempts)
}

func TestEnqueueJobsManager_Status(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FindByIDFunc = func(ctx context.Context, id int64) (*types.EnqueuedJob, error) {
		if id == 1 {
			return &types.EnqueuedJob{ID: 1, Status: state.StatusRetrying}, nil
		}
		return nil, custom_errors.ErrScheduledTaskNotFound
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)

	status, err := em.Status(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, state.StatusRetrying, status)

	_, err = em.Status(context.Background(), 2)
	assert.True(t, client.IsTaskMissing(err))
}

func TestEnqueueJobsManager_Start_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &mocks.MockEnqueuedJobStore{}
	var staleTimeout time.Duration
	store.UnlockStaleJobsFunc = func(ctx context.Context, timeout time.Duration) error {
		staleTimeout = timeout
		return nil
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)

	done := make(chan error, 1)
	go func() {
		done <- em.Start(ctx, 1, 2, 10, 5*time.Minute)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
	assert.Equal(t, 5*time.Minute, staleTimeout)
}

func TestEnqueueJobsManager_Start_UnlockStaleJobsError(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.UnlockStaleJobsFunc = func(ctx context.Context, timeout time.Duration) error {
		return errors.New("db down")
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)
	err := em.Start(context.Background(), 1, 1, 10, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestEnqueueJobsManager_Start_ProcessesDueJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &mocks.MockEnqueuedJobStore{}
	var fetched sync.Once
	store.FetchDueJobsFunc = func(ctx context.Context, page int, pageSize int, statuses []state.JobStatus, scheduledBefore *time.Time) (*types.PaginationResult[types.EnqueuedJob], error) {
		items := []types.EnqueuedJob{}
		fetched.Do(func() {
			items = append(items, types.EnqueuedJob{ID: 7, Name: "Greet", Payload: []byte(`{"who":"ops"}`), MaxAttempts: 1})
		})
		return &types.PaginationResult[types.EnqueuedJob]{Items: items}, nil
	}
	var lockedBy string
	store.LockJobFunc = func(ctx context.Context, jobID int64, by string) (bool, error) {
		lockedBy = by
		return true, nil
	}
	succeeded := make(chan int64, 1)
	store.MarkSuccessFunc = func(ctx context.Context, jobID int64) error {
		succeeded <- jobID
		return nil
	}

	jobHandler := config.NewJobHandler()
	var gotTaskID int64
	var gotWho any
	require.NoError(t, jobHandler.Register("Greet", func(ctx context.Context, args map[string]any) error {
		gotTaskID, _ = config.TaskIDFromContext(ctx)
		gotWho = args["who"]
		return nil
	}))

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, jobHandler)
	go func() { _ = em.Start(ctx, 1, 2, 10, time.Minute) }()

	select {
	case id := <-succeeded:
		assert.Equal(t, int64(7), id)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not marked succeeded")
	}
	assert.Equal(t, "test-instance", lockedBy)
	assert.Equal(t, int64(7), gotTaskID)
	assert.Equal(t, "ops", gotWho)
}

func TestEnqueueJobsManager_RunDue_HandlerNotFound(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = func(ctx context.Context, page int, pageSize int, statuses []state.JobStatus, scheduledBefore *time.Time) (*types.PaginationResult[types.EnqueuedJob], error) {
		assert.Equal(t, []state.JobStatus{state.StatusQueued, state.StatusRetrying}, statuses)
		assert.Equal(t, t0, *scheduledBefore)
		return &types.PaginationResult[types.EnqueuedJob]{Items: []types.EnqueuedJob{
			{ID: 3, Name: "Missing", Attempts: 1, MaxAttempts: 3},
		}}, nil
	}
	var failure struct {
		id          int64
		msg         string
		attempts    int
		maxAttempts int
	}
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, errMsg string, attempts int, maxAttempts int) error {
		failure.id, failure.msg, failure.attempts, failure.maxAttempts = jobID, errMsg, attempts, maxAttempts
		return nil
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)
	em.SetClock(func() time.Time { return t0 })

	n, err := em.RunDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(3), failure.id)
	assert.Contains(t, failure.msg, "not found")
	assert.Equal(t, 2, failure.attempts)
	assert.Equal(t, 3, failure.maxAttempts)
}

func TestEnqueueJobsManager_RunDue_RecoversPanic(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FetchDueJobsFunc = func(ctx context.Context, page int, pageSize int, statuses []state.JobStatus, scheduledBefore *time.Time) (*types.PaginationResult[types.EnqueuedJob], error) {
		return &types.PaginationResult[types.EnqueuedJob]{Items: []types.EnqueuedJob{{ID: 4, Name: "Boom", MaxAttempts: 1}}}, nil
	}
	var msg string
	store.MarkFailureFunc = func(ctx context.Context, jobID int64, errMsg string, attempts int, maxAttempts int) error {
		msg = errMsg
		return nil
	}

	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("Boom", func(ctx context.Context, args map[string]any) error {
		panic("kaput")
	}))

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, jobHandler)
	_, err := em.RunDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Contains(t, msg, "kaput")
}

func TestEnqueueJobsManager_ExecuteJobManually(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FindByIDFunc = func(ctx context.Context, id int64) (*types.EnqueuedJob, error) {
		return &types.EnqueuedJob{ID: id, Name: "Manual", Payload: []byte(`{}`), Status: state.StatusQueued, MaxAttempts: 3}, nil
	}
	var marked int64
	store.MarkSuccessFunc = func(ctx context.Context, jobID int64) error {
		marked = jobID
		return nil
	}

	jobHandler := config.NewJobHandler()
	called := false
	require.NoError(t, jobHandler.Register("Manual", func(ctx context.Context, args map[string]any) error {
		called = true
		return nil
	}))

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, jobHandler)
	require.NoError(t, em.ExecuteJobManually(context.Background(), 11))
	assert.True(t, called)
	assert.Equal(t, int64(11), marked)
}

func TestEnqueueJobsManager_ExecuteJobManually_Errors(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	store.FindByIDFunc = func(ctx context.Context, id int64) (*types.EnqueuedJob, error) {
		switch id {
		case 1:
			return &types.EnqueuedJob{ID: 1, Name: "Unknown"}, nil
		case 2:
			return &types.EnqueuedJob{ID: 2, Name: "Known", Status: state.StatusSucceeded}, nil
		}
		return nil, custom_errors.ErrScheduledTaskNotFound
	}
	store.LockJobFunc = func(ctx context.Context, jobID int64, lockedBy string) (bool, error) {
		return false, nil
	}

	jobHandler := config.NewJobHandler()
	require.NoError(t, jobHandler.Register("Known", func(ctx context.Context, args map[string]any) error { return nil }))
	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, jobHandler)

	assert.ErrorIs(t, em.ExecuteJobManually(context.Background(), 9), custom_errors.ErrScheduledTaskNotFound)
	assert.ErrorContains(t, em.ExecuteJobManually(context.Background(), 1), "handler 'Unknown' not found")
	assert.ErrorContains(t, em.ExecuteJobManually(context.Background(), 2), "not pending")
}

func TestEnqueueJobsManager_MarkRetryFailedJobs_RequiresLock(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	var retried int32
	var mu sync.Mutex
	store.MarkRetryFailedJobsFunc = func(ctx context.Context) error {
		mu.Lock()
		retried++
		mu.Unlock()
		return nil
	}

	held := false
	lockMgr := &mocks.MockDistributedLockManager{
		TryAcquireFunc: func(ctx context.Context, lockID int) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			return held, nil
		},
	}

	em := newTestEnqueueManager(store, lockMgr, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	em.MarkRetryFailedJobs(ctx, 10*time.Millisecond, 0)
	cancel()

	mu.Lock()
	assert.Equal(t, int32(0), retried)
	held = true
	mu.Unlock()

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	em.MarkRetryFailedJobs(ctx, 10*time.Millisecond, 0)
	cancel()

	mu.Lock()
	assert.Greater(t, retried, int32(0))
	mu.Unlock()
}

func TestEnqueueJobsManager_MarkRetryFailedJobs_UnlocksStaleJobs(t *testing.T) {
	store := &mocks.MockEnqueuedJobStore{}
	var mu sync.Mutex
	var timeouts []time.Duration
	store.UnlockStaleJobsFunc = func(ctx context.Context, timeout time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		timeouts = append(timeouts, timeout)
		return nil
	}

	em := newTestEnqueueManager(store, &mocks.MockDistributedLockManager{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	em.MarkRetryFailedJobs(ctx, 10*time.Millisecond, 5*time.Minute)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, timeouts)
	assert.Equal(t, 5*time.Minute, timeouts[0])
}
