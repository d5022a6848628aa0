package config

const (
	DefaultWorkerCount      = 5
	DefaultEnqueueInterval  = 1
	DefaultStorageDriver    = Postgres
	DefaultLockDriver       = PostgresAdvisoryLock
	DefaultBatchSize        = 100
	DefaultJanitorInterval  = 60
	DefaultRetryInterval    = 5
	DefaultStaleLockMinutes = 5
	DefaultMetricsNamespace = "recurfire"
	DefaultEventQueue       = "recurfire.events"
	DefaultEventExchange    = "recurfire"
	DefaultEventRoutingKey  = "recurring_job"
)
