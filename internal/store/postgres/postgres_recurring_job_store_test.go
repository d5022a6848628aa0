package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recurringJobRowColumns = []string{
	"id", "name", "target_function", "args", "schedule_kind", "interval_ms", "cron_spec",
	"pending_tick_task_id", "last_dispatch_task_id", "version", "created_at", "updated_at",
}

func TestNewPostgresRecurringJobStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, NewPostgresRecurringJobStore(db))
}

func TestPostgresRecurringJobStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	name := "nightly"
	job := &types.RecurringJob{
		Name:           &name,
		TargetFunction: "send_report",
		Args:           map[string]any{"to": "ops"},
		Schedule:       types.Cron("0 0 * * *"),
	}

	mock.ExpectQuery("INSERT INTO recurfire_schema.recurring_jobs").
		WithArgs("nightly", "send_report", []byte(`{"to":"ops"}`), "cron", nil, "0 0 * * *", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	id, err := store.Create(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), job.ID)
	assert.Equal(t, int64(1), job.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_Create_Interval(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	job := &types.RecurringJob{TargetFunction: "ping", Schedule: types.Interval(1000)}

	mock.ExpectQuery("INSERT INTO recurfire_schema.recurring_jobs").
		WithArgs(nil, "ping", []byte(`{}`), "interval", int64(1000), nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

	_, err = store.Create(context.Background(), job)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_Create_DuplicateName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	name := "nightly"

	mock.ExpectQuery("INSERT INTO recurfire_schema.recurring_jobs").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err = store.Create(context.Background(), &types.RecurringJob{
		Name: &name, TargetFunction: "f", Schedule: types.Interval(1000),
	})
	assert.True(t, errors.Is(err, custom_errors.ErrDuplicateName))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM recurfire_schema.recurring_jobs").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(recurringJobRowColumns).
			AddRow(7, "nightly", "send_report", []byte(`{"to":"ops"}`), "cron", nil, "0 0 * * *", 11, nil, 3, now, now))

	job, err := store.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "nightly", *job.Name)
	assert.Equal(t, types.Cron("0 0 * * *"), job.Schedule)
	require.NotNil(t, job.PendingTickTaskID)
	assert.Equal(t, int64(11), *job.PendingTickTaskID)
	assert.Nil(t, job.LastDispatchTaskID)
	assert.Equal(t, int64(3), job.Version)
	assert.Equal(t, "ops", job.Args["to"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)

	mock.ExpectQuery("SELECT (.+) FROM recurfire_schema.recurring_jobs").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(recurringJobRowColumns))

	job, err := store.FindByID(context.Background(), 9)
	assert.Nil(t, job)
	assert.True(t, errors.Is(err, custom_errors.ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_FindByName_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)

	mock.ExpectQuery("SELECT (.+) FROM recurfire_schema.recurring_jobs").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(recurringJobRowColumns))

	job, err := store.FindByName(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_GetAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT (.+) FROM recurfire_schema.recurring_jobs").
		WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(recurringJobRowColumns).
			AddRow(1, nil, "a", []byte(`{}`), "interval", 1000, nil, 5, 4, 2, now, now).
			AddRow(2, "b", "b", []byte(`{}`), "cron", nil, "@daily", 6, nil, 1, now, now))

	result, err := store.GetAll(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Nil(t, result.Items[0].Name)
	assert.Equal(t, types.Interval(1000), result.Items[0].Schedule)
	assert.Equal(t, int64(4), *result.Items[0].LastDispatchTaskID)
	assert.Equal(t, 1, result.TotalPages)
	assert.False(t, result.HasNextPage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_UpdateTaskPointers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	tick, dispatch := int64(21), int64(20)

	mock.ExpectExec("UPDATE recurfire_schema.recurring_jobs").
		WithArgs(int64(21), int64(20), 7, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateTaskPointers(context.Background(), 7, 3, &tick, &dispatch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_UpdateTaskPointers_StaleVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	tick := int64(21)

	mock.ExpectExec("UPDATE recurfire_schema.recurring_jobs").
		WithArgs(int64(21), nil, 7, 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = store.UpdateTaskPointers(context.Background(), 7, 3, &tick, nil)
	assert.True(t, errors.Is(err, custom_errors.ErrWriteConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_UpdateTaskPointers_Deleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	tick := int64(21)

	mock.ExpectExec("UPDATE recurfire_schema.recurring_jobs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = store.UpdateTaskPointers(context.Background(), 7, 3, &tick, nil)
	assert.True(t, errors.Is(err, custom_errors.ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_UpdateTaskPointers_SerializationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)
	tick := int64(21)

	mock.ExpectExec("UPDATE recurfire_schema.recurring_jobs").
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

	err = store.UpdateTaskPointers(context.Background(), 7, 3, &tick, nil)
	assert.True(t, errors.Is(err, custom_errors.ErrWriteConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecurringJobStore_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresRecurringJobStore(db)

	mock.ExpectExec("DELETE FROM recurfire_schema.recurring_jobs").
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM recurfire_schema.recurring_jobs").
		WithArgs(8).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), 7))
	err = store.Delete(context.Background(), 8)
	assert.True(t, errors.Is(err, custom_errors.ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
