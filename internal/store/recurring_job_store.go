package store

import (
	"context"

	"github.com/RezaEskandarii/recurfire/types"
)

// RecurringJobStore persists recurring job records.
type RecurringJobStore interface {
	// Create inserts job and sets its ID and Version. A taken name yields
	// custom_errors.ErrDuplicateName.
	Create(ctx context.Context, job *types.RecurringJob) (int64, error)

	// FindByID returns the record or custom_errors.ErrJobNotFound.
	FindByID(ctx context.Context, id int64) (*types.RecurringJob, error)

	// FindByName returns nil, nil when no record carries name.
	FindByName(ctx context.Context, name string) (*types.RecurringJob, error)

	GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error)

	// UpdateTaskPointers overwrites both task pointers if the stored version
	// still equals expectedVersion, and bumps the version. A stale version
	// yields custom_errors.ErrWriteConflict, a missing row ErrJobNotFound.
	UpdateTaskPointers(ctx context.Context, id int64, expectedVersion int64, pendingTickTaskID, lastDispatchTaskID *int64) error

	// Delete removes the record or returns custom_errors.ErrJobNotFound.
	Delete(ctx context.Context, id int64) error

	Close() error
}
