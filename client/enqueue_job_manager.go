package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/internal/lock"
	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// TaskScheduler schedules single future invocations of a registered handler.
// Calls made with a context carrying a transaction join that transaction.
type TaskScheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, target string, args map[string]any) (int64, error)
	ScheduleAfter(ctx context.Context, delay time.Duration, target string, args map[string]any) (int64, error)
	// Cancel stops a task that has not started. It reports false when the
	// task already ran or is running.
	Cancel(ctx context.Context, taskID int64) (bool, error)
	Status(ctx context.Context, taskID int64) (state.JobStatus, error)
	Get(ctx context.Context, taskID int64) (*types.EnqueuedJob, error)
}

var _ TaskScheduler = (*EnqueueJobsManager)(nil)

type EnqueueJobsManager struct {
	store      store.EnqueuedJobStore
	instance   string
	lock       lock.DistributedLockManager
	jobHandler *config.JobHandler
	jobResults chan types.JobResult
	logger     *zap.SugaredLogger
	metrics    *Metrics
	now        func() time.Time
}

func NewEnqueueJobsManager(jobStore store.EnqueuedJobStore, lock lock.DistributedLockManager, jobHandler *config.JobHandler, instance string, log *zap.SugaredLogger, metrics *Metrics) *EnqueueJobsManager {
	return &EnqueueJobsManager{
		store:      jobStore,
		instance:   instance,
		lock:       lock,
		jobHandler: jobHandler,
		jobResults: make(chan types.JobResult, 1000),
		logger:     logger.Named(log, "tasks"),
		metrics:    metrics,
		now:        time.Now,
	}
}

// SetClock replaces the time source used for scheduling and due-task polling.
func (em *EnqueueJobsManager) SetClock(now func() time.Time) {
	em.now = now
}

// Enqueue stores a one-shot job that is retried up to constants.MaxRetryAttempt times.
func (em *EnqueueJobsManager) Enqueue(ctx context.Context, name string, scheduledAt time.Time, args map[string]any) (int64, error) {
	if name == "" {
		return 0, errors.New("job name is required")
	}
	jobID, err := em.store.Insert(ctx, name, scheduledAt, constants.MaxRetryAttempt, args)
	if err != nil {
		em.logger.Errorw("enqueue failed", "job", name, "error", err)
		return 0, err
	}
	return jobID, nil
}

func (em *EnqueueJobsManager) ScheduleAt(ctx context.Context, at time.Time, target string, args map[string]any) (int64, error) {
	attempts := constants.DispatchMaxAttempts
	if target == constants.TickHandlerName {
		attempts = constants.TickMaxAttempts
	}
	return em.store.Insert(ctx, target, at, attempts, args)
}

func (em *EnqueueJobsManager) ScheduleAfter(ctx context.Context, delay time.Duration, target string, args map[string]any) (int64, error) {
	return em.ScheduleAt(ctx, em.now().Add(delay), target, args)
}

func (em *EnqueueJobsManager) Cancel(ctx context.Context, taskID int64) (bool, error) {
	return em.store.Cancel(ctx, taskID)
}

func (em *EnqueueJobsManager) Status(ctx context.Context, taskID int64) (state.JobStatus, error) {
	job, err := em.store.FindByID(ctx, taskID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

func (em *EnqueueJobsManager) Get(ctx context.Context, taskID int64) (*types.EnqueuedJob, error) {
	return em.store.FindByID(ctx, taskID)
}

func (em *EnqueueJobsManager) Remove(ctx context.Context, taskID int64) error {
	return em.store.RemoveByID(ctx, taskID)
}

// MarkRetryFailedJobs requeues failed tasks with attempts left, and tasks
// left in processing longer than staleLockTimeout by a worker that went away.
// Only the instance holding constants.RetryLock does the work on each tick.
func (em *EnqueueJobsManager) MarkRetryFailedJobs(ctx context.Context, interval, staleLockTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			em.retrySweep(ctx, staleLockTimeout)
		}
	}
}

func (em *EnqueueJobsManager) retrySweep(ctx context.Context, staleLockTimeout time.Duration) {
	const retryLock = constants.RetryLock

	acquired, err := em.lock.TryAcquire(ctx, retryLock)
	if err != nil {
		em.logger.Warnw("retry lock", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := em.lock.Release(ctx, retryLock); err != nil {
			em.logger.Warnw("release retry lock", "error", err)
		}
	}()

	if staleLockTimeout > 0 {
		if err := em.store.UnlockStaleJobs(ctx, staleLockTimeout); err != nil {
			em.logger.Errorw("unlock stale jobs", "error", err)
		}
	}
	if err := em.store.MarkRetryFailedJobs(ctx); err != nil {
		em.logger.Errorw("mark retry failed jobs", "error", err)
	}
}

// Start polls for due tasks every interval seconds and runs them on at most
// workerCount goroutines until ctx is done.
func (em *EnqueueJobsManager) Start(ctx context.Context, interval, workerCount, batchSize int, staleLockTimeout time.Duration) error {
	if err := em.store.UnlockStaleJobs(ctx, staleLockTimeout); err != nil {
		return errors.Wrap(err, "unlock stale jobs")
	}

	stopResults := em.startResultProcessor(ctx)

	sem := semaphore.NewWeighted(int64(workerCount))
	var wg sync.WaitGroup

	for {
		em.processDueJobs(ctx, sem, &wg, batchSize)

		select {
		case <-ctx.Done():
			// Running tasks finish and their results are stored before
			// returning, so nothing stays in processing after a clean stop.
			wg.Wait()
			stopResults()
			return ctx.Err()
		case <-time.After(time.Duration(interval) * time.Second):
		}
	}
}

// RunDue executes the tasks due now one after another and returns how many ran.
func (em *EnqueueJobsManager) RunDue(ctx context.Context, batchSize int) (int, error) {
	now := em.now()
	jobsList, err := em.store.FetchDueJobs(ctx, 1, batchSize, pendingStatuses, &now)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, job := range jobsList.Items {
		ok, err := em.store.LockJob(ctx, job.ID, em.instance)
		if err != nil {
			return ran, err
		}
		if !ok {
			continue
		}
		em.applyResult(ctx, em.execute(ctx, job))
		ran++
	}
	return ran, nil
}

func (em *EnqueueJobsManager) ExecuteJobManually(ctx context.Context, jobID int64) error {
	job, err := em.store.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	if !em.jobHandler.Exists(job.Name) {
		return fmt.Errorf("handler '%s' not found", job.Name)
	}

	ok, err := em.store.LockJob(ctx, job.ID, em.instance)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Newf("task %d is %s, not pending", job.ID, job.Status)
	}

	res := em.execute(ctx, *job)
	em.applyResult(ctx, res)
	return res.Err
}

var pendingStatuses = []state.JobStatus{state.StatusQueued, state.StatusRetrying}

// startResultProcessor applies worker results until the returned stop
// function is called. stop drains whatever is still queued, then returns.
// Results are stored even after ctx is cancelled.
func (em *EnqueueJobsManager) startResultProcessor(ctx context.Context) (stop func()) {
	ctx = context.WithoutCancel(ctx)
	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case res := <-em.jobResults:
				em.applyResult(ctx, res)
			case <-quit:
				for {
					select {
					case res := <-em.jobResults:
						em.applyResult(ctx, res)
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		close(quit)
		<-done
	}
}

// applyResult records a finished task. Rows that left processing meanwhile
// (canceled, requeued) are left untouched by the store.
func (em *EnqueueJobsManager) applyResult(ctx context.Context, res types.JobResult) {
	if !state.IsValidTransition(state.StatusProcessing, res.Status) {
		em.logger.Warnw("unexpected task result", "task_id", res.JobID, "status", res.Status)
		return
	}
	switch res.Status {
	case state.StatusSucceeded:
		if err := em.store.MarkSuccess(ctx, res.JobID); err != nil {
			em.logger.Errorw("mark success", "task_id", res.JobID, "error", err)
		}
	case state.StatusFailed:
		if err := em.store.MarkFailure(ctx, res.JobID, res.Err.Error(), res.Attempts, res.MaxAttempts); err != nil {
			em.logger.Errorw("mark failure", "task_id", res.JobID, "error", err)
		}
	default:
		em.logger.Warnw("unknown job status", "task_id", res.JobID, "status", res.Status)
	}
}

func (em *EnqueueJobsManager) processDueJobs(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup, batchSize int) {
	now := em.now()
	jobsList, err := em.store.FetchDueJobs(ctx, 1, batchSize, pendingStatuses, &now)
	if err != nil {
		em.logger.Errorw("fetch due tasks", "error", err)
		return
	}
	if len(jobsList.Items) > 0 {
		em.logger.Debugw("processing due tasks", "count", len(jobsList.Items))
	}

	for _, job := range jobsList.Items {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}

		ok, err := em.store.LockJob(ctx, job.ID, em.instance)
		if err != nil || !ok {
			if err != nil {
				em.logger.Warnw("lock task", "task_id", job.ID, "error", err)
			}
			sem.Release(1)
			continue
		}

		wg.Add(1)
		go em.handleJob(ctx, sem, wg, job)
	}
}

func (em *EnqueueJobsManager) handleJob(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup, job types.EnqueuedJob) {
	defer func() {
		sem.Release(1)
		wg.Done()
	}()

	em.jobResults <- em.execute(ctx, job)
}

// execute runs the task's handler with the task id attached to the context.
func (em *EnqueueJobsManager) execute(ctx context.Context, job types.EnqueuedJob) (res types.JobResult) {
	res = types.JobResult{
		JobID:       job.ID,
		Attempts:    job.Attempts + 1,
		MaxAttempts: job.MaxAttempts,
		Status:      state.StatusSucceeded,
	}
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			em.logger.Errorw("panic in task", "task_id", job.ID, "job", job.Name, "panic", r)
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			res.Status = state.StatusFailed
		}
		em.metrics.RecordTask(string(res.Status), time.Since(started))
	}()

	if !em.jobHandler.Exists(job.Name) {
		res.Err = fmt.Errorf("handler '%s' not found", job.Name)
		return res
	}

	args, err := job.Args()
	if err != nil {
		res.Err = errors.Wrap(err, "invalid payload")
		return res
	}

	res.Err = em.jobHandler.Execute(config.WithTaskID(ctx, job.ID), job.Name, args)
	if res.Err != nil {
		em.logger.Warnw("task failed", "task_id", job.ID, "job", job.Name, "error", res.Err)
	}
	return res
}

// IsTaskMissing reports whether err means the scheduled task does not exist.
func IsTaskMissing(err error) bool {
	return errors.Is(err, custom_errors.ErrScheduledTaskNotFound)
}
