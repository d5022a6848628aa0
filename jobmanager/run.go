package jobmanager

import (
	"context"
	"runtime"
	"time"

	"github.com/RezaEskandarii/recurfire/app"
	"github.com/RezaEskandarii/recurfire/internal/db"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/cockroachdb/errors"
)

// New wires the scheduler from cfg, applies migrations and starts the
// background services on ctx:
//  1. the task poller with cfg.WorkerCount workers,
//  2. the retry sweep over failed and abandoned tasks,
//  3. the janitor, unless cfg.JanitorInterval is 0,
//  4. the /metrics listener, unless cfg.MetricsPort is 0.
//
// Everything stops when ctx is done. Call Close on the returned container
// afterwards to release connections.
func New(ctx context.Context, cfg *config.Config, opts ...app.ContainerOption) (*app.Container, error) {
	c, err := NewClient(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	log := c.Logger
	log.Infow("starting scheduler", "instance", cfg.Instance, "workers", cfg.WorkerCount, "gomaxprocs", runtime.GOMAXPROCS(0))

	go func() {
		err := c.Tasks.Start(ctx,
			cfg.EnqueueInterval,
			cfg.WorkerCount,
			cfg.BatchSize,
			time.Duration(cfg.StaleLockMinutes)*time.Minute,
		)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("task poller stopped", "error", err)
		}
	}()

	go c.Tasks.MarkRetryFailedJobs(ctx,
		time.Duration(cfg.RetryInterval)*time.Second,
		time.Duration(cfg.StaleLockMinutes)*time.Minute,
	)

	if cfg.JanitorInterval > 0 {
		go c.Recurring.StartJanitor(ctx, time.Duration(cfg.JanitorInterval)*time.Second)
	}

	if cfg.MetricsPort > 0 {
		if err := serveMetrics(ctx, c, cfg.MetricsPort); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

// NewClient wires the scheduler and applies migrations without starting any
// background service. Use it from processes that only register or manage jobs.
func NewClient(ctx context.Context, cfg *config.Config, opts ...app.ContainerOption) (*app.Container, error) {
	c, err := app.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.Init(ctx, c.DB, c.LockManager); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "init database")
	}
	return c, nil
}
