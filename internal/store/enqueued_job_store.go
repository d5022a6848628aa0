package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/types"
)

// EnqueuedJobStore persists single-shot tasks: "run handler name with these
// args at or after scheduledAt".
type EnqueuedJobStore interface {
	// Insert stores a queued task and returns its id.
	Insert(ctx context.Context, jobName string, scheduledAt time.Time, maxAttempts int, args map[string]any) (int64, error)

	// FindByID returns the task or custom_errors.ErrScheduledTaskNotFound.
	FindByID(ctx context.Context, id int64) (*types.EnqueuedJob, error)

	// Cancel moves a pending task to canceled. It returns false when the task
	// already started or finished, and ErrScheduledTaskNotFound when it does not exist.
	Cancel(ctx context.Context, id int64) (bool, error)

	RemoveByID(ctx context.Context, id int64) error

	// FetchDueJobs pages through tasks in the given statuses scheduled at or before scheduledBefore.
	FetchDueJobs(ctx context.Context, page int, pageSize int, statuses []state.JobStatus, scheduledBefore *time.Time) (*types.PaginationResult[types.EnqueuedJob], error)

	// LockJob claims a pending task for lockedBy. False means another worker won.
	LockJob(ctx context.Context, jobID int64, lockedBy string) (bool, error)

	// MarkSuccess finishes a processing task. Canceled rows are left alone.
	MarkSuccess(ctx context.Context, jobID int64) error

	// MarkFailure records a failed attempt; the task is dead once attempts reach maxAttempts.
	MarkFailure(ctx context.Context, jobID int64, errMsg string, attempts int, maxAttempts int) error

	// MarkRetryFailedJobs requeues failed tasks that still have attempts left.
	MarkRetryFailedJobs(ctx context.Context) error

	// UnlockStaleJobs requeues tasks left in processing for longer than timeout.
	UnlockStaleJobs(ctx context.Context, timeout time.Duration) error

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	// Close closes the database
	Close() error
}
