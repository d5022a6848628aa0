package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// settings mirrors the RECURFIRE_* environment and the optional config file.
type settings struct {
	Instance string `mapstructure:"instance"`

	Postgres struct {
		URL          string `mapstructure:"url"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Lock struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"lock"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Workers          int `mapstructure:"workers"`
	PollInterval     int `mapstructure:"poll_interval"`
	BatchSize        int `mapstructure:"batch_size"`
	RetryInterval    int `mapstructure:"retry_interval"`
	JanitorInterval  int `mapstructure:"janitor_interval"`
	StaleLockMinutes int `mapstructure:"stale_lock_minutes"`

	Events struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"events"`

	RabbitMQ struct {
		URL        string `mapstructure:"url"`
		Exchange   string `mapstructure:"exchange"`
		Queue      string `mapstructure:"queue"`
		RoutingKey string `mapstructure:"routing_key"`
	} `mapstructure:"rabbitmq"`

	Metrics struct {
		Namespace string `mapstructure:"namespace"`
		Port      uint   `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Log struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("RECURFIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults also registers every key, which AutomaticEnv needs for Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("instance", defaultInstance())
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.max_open_conns", 0)
	v.SetDefault("postgres.max_idle_conns", 0)
	v.SetDefault("lock.driver", config.DefaultLockDriver.String())
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("workers", config.DefaultWorkerCount)
	v.SetDefault("poll_interval", config.DefaultEnqueueInterval)
	v.SetDefault("batch_size", config.DefaultBatchSize)
	v.SetDefault("retry_interval", config.DefaultRetryInterval)
	v.SetDefault("janitor_interval", config.DefaultJanitorInterval)
	v.SetDefault("stale_lock_minutes", config.DefaultStaleLockMinutes)
	v.SetDefault("events.enabled", false)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", config.DefaultEventExchange)
	v.SetDefault("rabbitmq.queue", config.DefaultEventQueue)
	v.SetDefault("rabbitmq.routing_key", config.DefaultEventRoutingKey)
	v.SetDefault("metrics.namespace", config.DefaultMetricsNamespace)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

func defaultInstance() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "recurfire"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// loadSettings reads configFile when it is set; environment variables win over it.
func loadSettings(v *viper.Viper, configFile string) (*settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &s, nil
}

// toConfig validates s through the config options and registers the built-in handlers.
func (s *settings) toConfig() (*config.Config, error) {
	lockDriver, ok := config.ParseLockDriver(s.Lock.Driver)
	if !ok {
		return nil, fmt.Errorf("unknown lock driver %q", s.Lock.Driver)
	}

	opts := []config.ContainerOption{
		config.WithPostgresConfig(config.PostgresConfig{
			ConnectionUrl: s.Postgres.URL,
			MaxOpenConns:  s.Postgres.MaxOpenConns,
			MaxIdleConns:  s.Postgres.MaxIdleConns,
		}),
		config.WithWorkerCount(s.Workers),
		config.WithEnqueueInterval(s.PollInterval),
		config.WithBatchSize(s.BatchSize),
		config.WithRetryInterval(s.RetryInterval),
		config.WithJanitorInterval(s.JanitorInterval),
		config.WithStaleLockMinutes(s.StaleLockMinutes),
		config.WithMetrics(s.Metrics.Namespace, s.Metrics.Port),
		config.WithLogging(s.Log.Level, s.Log.JSON),
	}
	if lockDriver == config.RedisLock {
		opts = append(opts, config.WithRedisLock(config.RedisConfig{
			Address:  s.Redis.Address,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		}))
	}
	if s.Events.Enabled {
		opts = append(opts, config.WithRabbitMQEvents(config.RabbitMQConfig{
			URL:        s.RabbitMQ.URL,
			Exchange:   s.RabbitMQ.Exchange,
			Queue:      s.RabbitMQ.Queue,
			RoutingKey: s.RabbitMQ.RoutingKey,
		}))
	}

	c, err := config.NewConfig(s.Instance, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.RegisterHandlers(builtinHandlers()); err != nil {
		return nil, err
	}
	return c, nil
}
