package lock

import "context"

// DistributedLockManager guards work that must run on one instance at a time.
type DistributedLockManager interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, lockID int) error
	// TryAcquire returns false immediately when another holder has the lock.
	TryAcquire(ctx context.Context, lockID int) (bool, error)
	Release(ctx context.Context, lockID int) error
}
