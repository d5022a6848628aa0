package types

import (
	"github.com/RezaEskandarii/recurfire/internal/state"
)

// JobResult carries a finished task from a worker goroutine to the result processor.
type JobResult struct {
	JobID       int64
	Err         error
	Attempts    int
	MaxAttempts int
	Status      state.JobStatus
}
