package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
)

const recurringJobColumns = `id, name, target_function, args, schedule_kind, interval_ms, cron_spec,
		       pending_tick_task_id, last_dispatch_task_id, version, created_at, updated_at`

type PostgresRecurringJobStore struct {
	db *sql.DB
}

var _ store.RecurringJobStore = (*PostgresRecurringJobStore)(nil)

func NewPostgresRecurringJobStore(db *sql.DB) *PostgresRecurringJobStore {
	return &PostgresRecurringJobStore{db: db}
}

func (r *PostgresRecurringJobStore) Create(ctx context.Context, job *types.RecurringJob) (int64, error) {
	args := job.Args
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal args: %w", err)
	}

	var intervalMs sql.NullInt64
	var cronSpec sql.NullString
	switch job.Schedule.Kind {
	case types.ScheduleKindInterval:
		intervalMs = sql.NullInt64{Int64: job.Schedule.IntervalMs, Valid: true}
	case types.ScheduleKindCron:
		cronSpec = sql.NullString{String: job.Schedule.CronSpec, Valid: true}
	}

	query := `
		INSERT INTO recurfire_schema.recurring_jobs (
			name, target_function, args, schedule_kind, interval_ms, cron_spec,
			pending_tick_task_id, last_dispatch_task_id, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, now(), now())
		RETURNING id
	`

	var id int64
	err = conn(ctx, r.db).QueryRowContext(ctx, query,
		nullString(job.Name),
		job.TargetFunction,
		argsJSON,
		string(job.Schedule.Kind),
		intervalMs,
		cronSpec,
		nullInt64(job.PendingTickTaskID),
		nullInt64(job.LastDispatchTaskID),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.Wrapf(custom_errors.ErrDuplicateName, "name %q", derefString(job.Name))
		}
		return 0, translateError(errors.Wrap(err, "insert recurring job"))
	}

	job.ID = id
	job.Version = 1
	return id, nil
}

func (r *PostgresRecurringJobStore) FindByID(ctx context.Context, id int64) (*types.RecurringJob, error) {
	query := `SELECT ` + recurringJobColumns + `
		FROM recurfire_schema.recurring_jobs
		WHERE id = $1`

	job, err := scanRecurringJob(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(custom_errors.ErrJobNotFound, "job %d", id)
	}
	if err != nil {
		return nil, translateError(errors.Wrapf(err, "find recurring job %d", id))
	}
	return job, nil
}

func (r *PostgresRecurringJobStore) FindByName(ctx context.Context, name string) (*types.RecurringJob, error) {
	query := `SELECT ` + recurringJobColumns + `
		FROM recurfire_schema.recurring_jobs
		WHERE name = $1`

	job, err := scanRecurringJob(conn(ctx, r.db).QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(errors.Wrapf(err, "find recurring job %q", name))
	}
	return job, nil
}

func (r *PostgresRecurringJobStore) GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	q := conn(ctx, r.db)

	var totalItems int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM recurfire_schema.recurring_jobs`).Scan(&totalItems); err != nil {
		return nil, translateError(err)
	}

	rows, err := q.QueryContext(ctx, `SELECT `+recurringJobColumns+`
		FROM recurfire_schema.recurring_jobs
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	jobs := []types.RecurringJob{}
	for rows.Next() {
		job, err := scanRecurringJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan recurring job")
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}

	return types.NewPage(jobs, totalItems, page, pageSize), nil
}

func (r *PostgresRecurringJobStore) UpdateTaskPointers(ctx context.Context, id int64, expectedVersion int64, pendingTickTaskID, lastDispatchTaskID *int64) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, `
		UPDATE recurfire_schema.recurring_jobs
		SET pending_tick_task_id = $1,
		    last_dispatch_task_id = $2,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $3 AND version = $4
	`, nullInt64(pendingTickTaskID), nullInt64(lastDispatchTaskID), id, expectedVersion)
	if err != nil {
		return translateError(errors.Wrapf(err, "update recurring job %d", id))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM recurfire_schema.recurring_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return translateError(errors.Wrapf(err, "update recurring job %d", id))
	}
	if !exists {
		return errors.Wrapf(custom_errors.ErrJobNotFound, "job %d", id)
	}
	return errors.Wrapf(custom_errors.ErrWriteConflict, "job %d changed since version %d", id, expectedVersion)
}

func (r *PostgresRecurringJobStore) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM recurfire_schema.recurring_jobs WHERE id = $1`, id)
	if err != nil {
		return translateError(errors.Wrapf(err, "delete recurring job %d", id))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(custom_errors.ErrJobNotFound, "job %d", id)
	}
	return nil
}

func (r *PostgresRecurringJobStore) Close() error {
	return r.db.Close()
}

func scanRecurringJob(row rowScanner) (*types.RecurringJob, error) {
	var (
		job          types.RecurringJob
		name         sql.NullString
		argsJSON     []byte
		kind         string
		intervalMs   sql.NullInt64
		cronSpec     sql.NullString
		pendingTick  sql.NullInt64
		lastDispatch sql.NullInt64
	)
	if err := row.Scan(
		&job.ID,
		&name,
		&job.TargetFunction,
		&argsJSON,
		&kind,
		&intervalMs,
		&cronSpec,
		&pendingTick,
		&lastDispatch,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if name.Valid {
		job.Name = &name.String
	}
	job.Args = map[string]any{}
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &job.Args); err != nil {
			return nil, fmt.Errorf("invalid args for job %d: %w", job.ID, err)
		}
	}
	job.Schedule = types.Schedule{
		Kind:       types.ScheduleKind(kind),
		IntervalMs: intervalMs.Int64,
		CronSpec:   cronSpec.String,
	}
	if pendingTick.Valid {
		job.PendingTickTaskID = &pendingTick.Int64
	}
	if lastDispatch.Valid {
		job.LastDispatchTaskID = &lastDispatch.Int64
	}
	return &job, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
