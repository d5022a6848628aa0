package client

import (
	"context"
	"time"

	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/RezaEskandarii/recurfire/types/config"
)

// JobManager is the application-facing API for recurring and one-shot jobs.
type JobManager struct {
	EnqueuedJobStore  store.EnqueuedJobStore
	RecurringJobStore store.RecurringJobStore
	JobHandler        *config.JobHandler

	Tasks     *EnqueueJobsManager
	Recurring *RecurringJobManager
}

func NewJobManager(enqueuedStore store.EnqueuedJobStore, recurringStore store.RecurringJobStore, jobHandler *config.JobHandler, tasks *EnqueueJobsManager, recurring *RecurringJobManager) *JobManager {
	return &JobManager{
		EnqueuedJobStore:  enqueuedStore,
		RecurringJobStore: recurringStore,
		JobHandler:        jobHandler,
		Tasks:             tasks,
		Recurring:         recurring,
	}
}

// Register schedules an anonymous recurring job.
func (jm *JobManager) Register(ctx context.Context, schedule types.Schedule, targetFunction string, args map[string]any) (int64, error) {
	return jm.Recurring.Register(ctx, RegisterRequest{Schedule: schedule, TargetFunction: targetFunction, Args: args})
}

// RegisterNamed schedules a recurring job whose name must be unique.
func (jm *JobManager) RegisterNamed(ctx context.Context, name string, schedule types.Schedule, targetFunction string, args map[string]any) (int64, error) {
	return jm.Recurring.Register(ctx, RegisterRequest{Name: name, Schedule: schedule, TargetFunction: targetFunction, Args: args})
}

func (jm *JobManager) ScheduleInterval(ctx context.Context, ms int64, targetFunction string, args map[string]any) (int64, error) {
	return jm.Register(ctx, types.Interval(ms), targetFunction, args)
}

func (jm *JobManager) ScheduleIntervalNamed(ctx context.Context, name string, ms int64, targetFunction string, args map[string]any) (int64, error) {
	return jm.RegisterNamed(ctx, name, types.Interval(ms), targetFunction, args)
}

func (jm *JobManager) ScheduleCron(ctx context.Context, spec string, targetFunction string, args map[string]any) (int64, error) {
	return jm.Register(ctx, types.Cron(spec), targetFunction, args)
}

func (jm *JobManager) ScheduleCronNamed(ctx context.Context, name, spec string, targetFunction string, args map[string]any) (int64, error) {
	return jm.RegisterNamed(ctx, name, types.Cron(spec), targetFunction, args)
}

func (jm *JobManager) List(ctx context.Context) ([]types.RecurringJob, error) {
	return jm.Recurring.List(ctx)
}

func (jm *JobManager) Get(ctx context.Context, id int64) (*types.RecurringJob, error) {
	return jm.Recurring.Get(ctx, id)
}

func (jm *JobManager) GetByName(ctx context.Context, name string) (*types.RecurringJob, error) {
	return jm.Recurring.GetByName(ctx, name)
}

func (jm *JobManager) Delete(ctx context.Context, id int64) error {
	return jm.Recurring.Delete(ctx, id)
}

func (jm *JobManager) DeleteByName(ctx context.Context, name string) error {
	return jm.Recurring.DeleteByName(ctx, name)
}

// Sweep re-arms stalled recurring jobs once, without taking the janitor lock.
func (jm *JobManager) Sweep(ctx context.Context) (int, error) {
	return jm.Recurring.Sweep(ctx)
}

// Enqueue stores a one-shot job for the handler jobName.
func (jm *JobManager) Enqueue(ctx context.Context, jobName string, enqueueAt time.Time, args map[string]any) (int64, error) {
	return jm.Tasks.Enqueue(ctx, jobName, enqueueAt, args)
}

// RemoveEnqueue deletes a one-shot job using its ID.
func (jm *JobManager) RemoveEnqueue(ctx context.Context, jobID int64) error {
	return jm.Tasks.Remove(ctx, jobID)
}

// Task returns a scheduled task, including ticks and dispatches.
func (jm *JobManager) Task(ctx context.Context, taskID int64) (*types.EnqueuedJob, error) {
	return jm.Tasks.Get(ctx, taskID)
}

func (jm *JobManager) CountTasksByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	return jm.EnqueuedJobStore.CountAllJobsGroupedByStatus(ctx)
}
