package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/internal/lock"
	"github.com/RezaEskandarii/recurfire/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationsDir = "migrations"

// Init creates the schema and applies the embedded migration scripts.
// It ensures that only one instance of the application runs the migration logic at a time by using a distributed lock.
//
// The function performs the following steps:
//  1. Acquires the migration lock.
//  2. Pings the database to verify the connection.
//  3. Creates the schema if it does not exist.
//  4. Executes every script under migrations/ in file name order.
//
// Scripts are idempotent, so running Init on every start is safe.
func Init(ctx context.Context, db *sql.DB, distributedLock lock.DistributedLockManager) error {
	migrationLock := constants.MigrationLock

	if err := distributedLock.Acquire(ctx, migrationLock); err != nil {
		return err
	}
	defer func() {
		if err := distributedLock.Release(ctx, migrationLock); err != nil {
			logger.Logger.Warnw("failed to release migration lock", "error", err)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", constants.Schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	scripts, err := readSQLScripts()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		logger.Logger.Debugw("applying migration", "script", script.name)
		if _, err := db.ExecContext(ctx, script.body); err != nil {
			return fmt.Errorf("apply migration %s: %w", script.name, err)
		}
	}

	return nil
}

type sqlScript struct {
	name string
	body string
}

func readSQLScripts() ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrationFS, migrationsDir)
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		content, err := fs.ReadFile(migrationFS, migrationsDir+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, sqlScript{name: entry.Name(), body: string(content)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}
