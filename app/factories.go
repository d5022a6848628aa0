package app

import (
	"database/sql"
	"fmt"

	"github.com/RezaEskandarii/recurfire/internal/lock"
	"github.com/RezaEskandarii/recurfire/internal/message_broaker"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/internal/store/postgres"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/redis/go-redis/v9"
)

// stores groups everything that lives in the storage backend. The
// transactor must cover both stores so a tick commits atomically.
type stores struct {
	enqueued  store.EnqueuedJobStore
	recurring store.RecurringJobStore
	tx        store.Transactor
}

func createStores(driver config.StorageDriver, db *sql.DB) (*stores, error) {
	switch driver {
	case config.Postgres:
		return &stores{
			enqueued:  postgres.NewPostgresEnqueuedJobStore(db),
			recurring: postgres.NewPostgresRecurringJobStore(db),
			tx:        postgres.NewTxManager(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %v", driver)
	}
}

func createDistributedLockManager(driver config.LockDriver, db *sql.DB, redisClient *redis.Client) (lock.DistributedLockManager, error) {
	switch driver {
	case config.PostgresAdvisoryLock:
		return lock.NewPostgresDistributedLockManager(db), nil
	case config.RedisLock:
		if redisClient == nil {
			return nil, fmt.Errorf("lock driver %s needs a redis client", driver)
		}
		return lock.NewRedisDistributedLockManager(redisClient, "", 0), nil
	default:
		return nil, fmt.Errorf("unsupported lock driver: %v", driver)
	}
}

func createMessageBroker(cfg *config.Config) (message_broaker.MessageBroker, error) {
	if !cfg.PublishEvents {
		return nil, nil
	}
	switch cfg.MQDriver {
	case config.RabbitMQ:
		rc := cfg.RabbitMQConfig
		broker, err := message_broaker.NewRabbitMQ(message_broaker.RabbitMQOptions{
			URL:        rc.URL,
			Exchange:   rc.Exchange,
			Queue:      rc.Queue,
			RoutingKey: rc.RoutingKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init rabbitmq: %w", err)
		}
		return broker, nil
	default:
		return nil, fmt.Errorf("unsupported message queue driver: %v", cfg.MQDriver)
	}
}
