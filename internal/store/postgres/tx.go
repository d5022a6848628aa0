package postgres

import (
	"context"
	"database/sql"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxManager implements store.Transactor with serializable Postgres transactions.
type TxManager struct {
	db   *sql.DB
	opts *sql.TxOptions
}

func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{
		db:   db,
		opts: &sql.TxOptions{Isolation: sql.LevelSerializable},
	}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return translateError(errors.Wrap(err, "begin transaction"))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Logger.Warnw("rollback failed", "error", rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return translateError(errors.Wrap(err, "commit transaction"))
	}
	return nil
}

// conn returns the transaction carried by ctx, or db.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// translateError marks Postgres contention failures as custom_errors.ErrWriteConflict.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return errors.Mark(err, custom_errors.ErrWriteConflict)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
