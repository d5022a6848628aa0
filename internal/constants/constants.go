package constants

// Advisory lock ids shared by every instance.
const (
	MigrationLock = iota + 1
	RetryLock
	JanitorLock
)

const (
	// MaxRetryAttempt bounds attempts for one-shot tasks enqueued by callers.
	MaxRetryAttempt = 3

	// TickMaxAttempts is 1: a failed tick is never retried, the janitor re-arms its job.
	TickMaxAttempts = 1

	// DispatchMaxAttempts is 1: target invocations are fire-and-forget.
	DispatchMaxAttempts = 1
)

// TickHandlerName is the reserved handler that runs recurring-job ticks.
const TickHandlerName = "recurfire.tick"

// TickJobIDArg is the payload key that carries the job id into a tick.
const TickJobIDArg = "job_id"

const Schema = "recurfire_schema"
