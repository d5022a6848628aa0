package jobmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/recurfire/app"
	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectMigrations(mock sqlmock.Sqlmock) {
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(constants.MigrationLock).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS " + constants.Schema).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("enqueued_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("recurring_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(constants.MigrationLock).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestNewClient_AppliesMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	expectMigrations(mock)

	cfg, err := config.NewConfig("test-instance")
	require.NoError(t, err)

	c, err := NewClient(context.Background(), cfg, app.WithDB(db), app.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.NotNil(t, c.JobManager)

	// The migration lock pins a second pooled connection, so only the
	// expectations are checked here.
	mock.ExpectClose()
	_ = c.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewClient_MigrationFailureClosesConnections(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(constants.MigrationLock).WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	cfg, err := config.NewConfig("test-instance")
	require.NoError(t, err)

	c, err := NewClient(context.Background(), cfg, app.WithDB(db), app.WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "init database")
	assert.NoError(t, mock.ExpectationsWereMet())
}
