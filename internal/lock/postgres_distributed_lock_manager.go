package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

const lockStatementTimeout = 5 * time.Second

// PostgresDistributedLockManager uses session-level advisory locks.
// Each held lock pins its own connection, since the unlock must run on the
// session that took it.
type PostgresDistributedLockManager struct {
	db    *sql.DB
	mu    sync.Mutex
	conns map[int]*sql.Conn
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{
		db:    db,
		conns: make(map[int]*sql.Conn),
	}
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	if l.isHeld(lockID) {
		return fmt.Errorf("failed to acquire lock: lock %d is already held by this instance", lockID)
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if _, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	l.hold(lockID, conn)
	return nil
}

func (l *PostgresDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	if l.isHeld(lockID) {
		return false, nil
	}

	qctx, cancel := context.WithTimeout(ctx, lockStatementTimeout)
	defer cancel()

	conn, err := l.db.Conn(qctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	var acquired bool
	if err = conn.QueryRowContext(qctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return false, nil
	}

	l.hold(lockID, conn)
	return true, nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	conn, ok := l.conns[lockID]
	delete(l.conns, lockID)
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to release lock: lock %d is not held", lockID)
	}
	defer conn.Close()

	qctx, cancel := context.WithTimeout(ctx, lockStatementTimeout)
	defer cancel()

	if _, err := conn.ExecContext(qctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

func (l *PostgresDistributedLockManager) hold(lockID int, conn *sql.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[lockID] = conn
}

func (l *PostgresDistributedLockManager) isHeld(lockID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.conns[lockID]
	return ok
}
