package app

import (
	"database/sql"

	"github.com/RezaEskandarii/recurfire/internal/message_broaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	db       *sql.DB
	redis    *redis.Client
	broker   message_broaker.MessageBroker
	registry *prometheus.Registry
	logger   *zap.SugaredLogger
}

// WithDB injects a database connection instead of opening one from config.
// The container still owns it and closes it in Close.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects the client used by the Redis lock driver.
func WithRedis(client *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = client
	}
}

// WithMessageBroker publishes lifecycle events to broker even when
// the config does not enable RabbitMQ.
func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

func WithRegistry(registry *prometheus.Registry) ContainerOption {
	return func(c *containerConfig) {
		c.registry = registry
	}
}

func WithLogger(log *zap.SugaredLogger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = log
	}
}
