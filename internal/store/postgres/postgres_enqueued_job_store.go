package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
)

const enqueuedJobColumns = `id, name, payload, status, attempts, max_attempts,
		       scheduled_at, executed_at, finished_at, last_error,
		       locked_by, locked_at, created_at`

type PostgresEnqueuedJobStore struct {
	db *sql.DB
}

var _ store.EnqueuedJobStore = (*PostgresEnqueuedJobStore)(nil)

func NewPostgresEnqueuedJobStore(db *sql.DB) *PostgresEnqueuedJobStore {
	return &PostgresEnqueuedJobStore{
		db: db,
	}
}

func (r *PostgresEnqueuedJobStore) Insert(ctx context.Context, jobName string, scheduledAt time.Time, maxAttempts int, args map[string]any) (int64, error) {
	if args == nil {
		args = map[string]any{}
	}
	payloadJSON, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	query := `
        INSERT INTO recurfire_schema.enqueued_jobs (
            name,
            payload,
            scheduled_at,
            max_attempts,
            status,
            created_at
        )
        VALUES ($1, $2, $3, $4, $5, now())
        RETURNING id
    `

	var jobID int64
	err = conn(ctx, r.db).QueryRowContext(ctx, query,
		jobName,
		payloadJSON,
		scheduledAt.UTC(),
		maxAttempts,
		state.StatusQueued,
	).Scan(&jobID)
	if err != nil {
		return 0, translateError(errors.Wrap(err, "insert enqueued job"))
	}

	return jobID, nil
}

func (r *PostgresEnqueuedJobStore) FindByID(ctx context.Context, id int64) (*types.EnqueuedJob, error) {
	query := `SELECT ` + enqueuedJobColumns + `
		FROM recurfire_schema.enqueued_jobs
		WHERE id = $1`

	job, err := scanEnqueuedJob(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(custom_errors.ErrScheduledTaskNotFound, "task %d", id)
	}
	if err != nil {
		return nil, translateError(errors.Wrapf(err, "find enqueued job %d", id))
	}
	return job, nil
}

func (r *PostgresEnqueuedJobStore) Cancel(ctx context.Context, id int64) (bool, error) {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, `
		UPDATE recurfire_schema.enqueued_jobs
		SET status = $1,
		    finished_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)
	`, state.StatusCanceled, id, state.StatusQueued, state.StatusRetrying)
	if err != nil {
		return false, translateError(errors.Wrapf(err, "cancel enqueued job %d", id))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM recurfire_schema.enqueued_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, translateError(errors.Wrapf(err, "cancel enqueued job %d", id))
	}
	if !exists {
		return false, errors.Wrapf(custom_errors.ErrScheduledTaskNotFound, "task %d", id)
	}
	return false, nil
}

func (r *PostgresEnqueuedJobStore) RemoveByID(ctx context.Context, jobID int64) error {
	query := `DELETE FROM recurfire_schema.enqueued_jobs WHERE id = $1`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job %d: %w", jobID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return errors.Wrapf(custom_errors.ErrScheduledTaskNotFound, "no job found with id %d", jobID)
	}

	return nil
}

func (r *PostgresEnqueuedJobStore) FetchDueJobs(
	ctx context.Context,
	page int,
	pageSize int,
	statuses []state.JobStatus,
	scheduledBefore *time.Time) (*types.PaginationResult[types.EnqueuedJob], error) {

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	where := "1=1"
	args := []interface{}{}
	argIndex := 1

	if scheduledBefore != nil {
		where += fmt.Sprintf(" AND scheduled_at <= $%d", argIndex)
		args = append(args, scheduledBefore.UTC())
		argIndex++
	}

	if len(statuses) > 0 {
		placeholders := []string{}
		for _, s := range statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argIndex))
			args = append(args, s)
			argIndex++
		}
		where += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	countQuery := `SELECT COUNT(*) FROM recurfire_schema.enqueued_jobs WHERE ` + where
	selectQuery := `SELECT ` + enqueuedJobColumns + `
		FROM recurfire_schema.enqueued_jobs
		WHERE ` + where + fmt.Sprintf(" ORDER BY scheduled_at ASC, id ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)

	args = append(args, pageSize, offset)

	q := conn(ctx, r.db)

	var totalItems int
	if err := q.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&totalItems); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []types.EnqueuedJob{}
	for rows.Next() {
		job, err := scanEnqueuedJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan enqueued job")
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPage(jobs, totalItems, page, pageSize), nil
}

func (r *PostgresEnqueuedJobStore) MarkRetryFailedJobs(ctx context.Context) error {
	query := `
		UPDATE recurfire_schema.enqueued_jobs
		SET
			status = $1,
			scheduled_at = NOW() + INTERVAL '1 minute'
		WHERE status = $2
		  AND attempts < max_attempts
	`

	_, err := conn(ctx, r.db).ExecContext(ctx, query, state.StatusRetrying, state.StatusFailed)
	return err
}

func (r *PostgresEnqueuedJobStore) LockJob(ctx context.Context, jobID int64, lockedBy string) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE recurfire_schema.enqueued_jobs
		SET locked_at = NOW(),
		    executed_at = NOW(),
		    locked_by = $1,
		    status = $2
		WHERE id = $3 AND (status = $4 OR status = $5)
	`, lockedBy, state.StatusProcessing, jobID, state.StatusQueued, state.StatusRetrying)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *PostgresEnqueuedJobStore) MarkSuccess(ctx context.Context, jobID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE recurfire_schema.enqueued_jobs
		SET status = $2,
		    finished_at = NOW(),
		    last_error = NULL,
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = $1 AND status = $3
	`, jobID, state.StatusSucceeded, state.StatusProcessing)

	return err
}

func (r *PostgresEnqueuedJobStore) MarkFailure(ctx context.Context, jobID int64, errMsg string, attempts int, maxAttempts int) error {
	status := state.StatusFailed
	if attempts >= maxAttempts {
		status = state.StatusDead
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE recurfire_schema.enqueued_jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = $3,
		    finished_at = NOW(),
		    locked_by = NULL,
		    locked_at = NULL
		WHERE id = $1 AND status = $4
	`, jobID, errMsg, status, state.StatusProcessing)

	return err
}

func (r *PostgresEnqueuedJobStore) UnlockStaleJobs(ctx context.Context, timeout time.Duration) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE recurfire_schema.enqueued_jobs
        SET status = $1,
            locked_by = NULL,
            locked_at = NULL
        WHERE status = $2 AND locked_at <= NOW() - ($3 * INTERVAL '1 second')
    `,
		state.StatusQueued,
		state.StatusProcessing,
		timeout.Seconds())
	return err
}

func (r *PostgresEnqueuedJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM recurfire_schema.enqueued_jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, rows.Err()
}

func (r *PostgresEnqueuedJobStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnqueuedJob(row rowScanner) (*types.EnqueuedJob, error) {
	var job types.EnqueuedJob
	var payload []byte
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ScheduledAt,
		&job.ExecutedAt,
		&job.FinishedAt,
		&job.LastError,
		&job.LockedBy,
		&job.LockedAt,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = payload

	return &job, nil
}
