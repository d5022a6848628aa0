package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RezaEskandarii/recurfire/client"
	"github.com/RezaEskandarii/recurfire/internal/lock"
	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/RezaEskandarii/recurfire/internal/message_broaker"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.Config

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis *redis.Client

	EnqueuedJobStore  store.EnqueuedJobStore
	RecurringJobStore store.RecurringJobStore
	Transactor        store.Transactor

	// Infrastructure
	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
	Registry      *prometheus.Registry
	Metrics       *client.Metrics
	Logger        *zap.SugaredLogger

	// Job handlers and managers
	JobHandler *config.JobHandler
	Tasks      *client.EnqueueJobsManager
	Recurring  *client.RecurringJobManager
	JobManager *client.JobManager
}

// NewContainer creates and wires all dependencies. Call it once per process.
// Connections it opens are closed again when wiring fails.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (c *Container, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c = &Container{
		Config:        cfg,
		DB:            opt.db,
		Redis:         opt.redis,
		MessageBroker: opt.broker,
		Registry:      opt.registry,
		Logger:        logger.Named(opt.logger, "recurfire"),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if c.DB == nil {
		if c.DB, err = openPostgresDB(cfg.PostgresConfig); err != nil {
			return c, err
		}
	}
	if cfg.LockDriver == config.RedisLock && c.Redis == nil {
		if c.Redis, err = openRedis(ctx, cfg.RedisConfig); err != nil {
			return c, err
		}
	}

	s, err := createStores(cfg.StorageDriver, c.DB)
	if err != nil {
		return c, err
	}
	c.EnqueuedJobStore, c.RecurringJobStore, c.Transactor = s.enqueued, s.recurring, s.tx

	if c.LockManager, err = createDistributedLockManager(cfg.LockDriver, c.DB, c.Redis); err != nil {
		return c, err
	}

	if c.MessageBroker == nil {
		if c.MessageBroker, err = createMessageBroker(cfg); err != nil {
			return c, err
		}
	}

	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	c.Metrics = client.NewMetrics(cfg.MetricsNamespace, c.Registry)

	c.JobHandler = config.NewJobHandler()
	for _, h := range cfg.Handlers {
		if err = c.JobHandler.Register(h.JobName, h.Func); err != nil {
			return c, fmt.Errorf("register handler: %w", err)
		}
	}

	c.Tasks = client.NewEnqueueJobsManager(c.EnqueuedJobStore, c.LockManager, c.JobHandler, cfg.Instance, c.Logger, c.Metrics)

	queue := ""
	if cfg.RabbitMQConfig != nil {
		queue = cfg.RabbitMQConfig.Queue
	}
	events := client.NewEventPublisher(c.MessageBroker, queue, cfg.Instance, logger.Named(c.Logger, "events"))

	c.Recurring = client.NewRecurringJobManager(c.RecurringJobStore, c.Transactor, c.Tasks, c.LockManager, events, c.Metrics, c.Logger)
	if err = c.Recurring.RegisterTickHandler(c.JobHandler); err != nil {
		return c, fmt.Errorf("register tick handler: %w", err)
	}

	c.JobManager = client.NewJobManager(c.EnqueuedJobStore, c.RecurringJobStore, c.JobHandler, c.Tasks, c.Recurring)
	return c, nil
}

// Close releases the broker and the storage connections.
func (c *Container) Close() error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
