package config

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// LockDriver selects the backend for cluster-wide locks.
type LockDriver int

const (
	PostgresAdvisoryLock LockDriver = iota + 1
	RedisLock
)

func (d LockDriver) String() string {
	switch d {
	case PostgresAdvisoryLock:
		return "postgres"
	case RedisLock:
		return "redis"
	}
	return "unknown"
}

// ParseLockDriver maps a config string to a LockDriver.
func ParseLockDriver(s string) (LockDriver, bool) {
	switch s {
	case "", "postgres":
		return PostgresAdvisoryLock, true
	case "redis":
		return RedisLock, true
	}
	return 0, false
}
