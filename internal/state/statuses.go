package state

// JobStatus is the lifecycle state of a scheduled task row.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying"
	StatusDead       JobStatus = "dead"
	StatusCanceled   JobStatus = "canceled"
)

func (s JobStatus) String() string {
	return string(s)
}

var AllStatuses = []JobStatus{
	StatusQueued,
	StatusProcessing,
	StatusSucceeded,
	StatusFailed,
	StatusRetrying,
	StatusDead,
	StatusCanceled,
}

// IsPending reports whether the task has not started yet.
func (s JobStatus) IsPending() bool {
	return s == StatusQueued || s == StatusRetrying
}

// IsRunning reports whether a worker currently holds the task.
func (s JobStatus) IsRunning() bool {
	return s == StatusProcessing
}

// IsActive is true for pending or running tasks.
func (s JobStatus) IsActive() bool {
	return s.IsPending() || s.IsRunning()
}

// IsTerminal is true once the task finished, one way or another.
// Failed rows with attempts left are picked up again by the retry loop.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDead, StatusCanceled:
		return true
	}
	return false
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusQueued, To: StatusProcessing},
	{From: StatusProcessing, To: StatusSucceeded},
	{From: StatusProcessing, To: StatusFailed},
	{From: StatusFailed, To: StatusRetrying},
	{From: StatusRetrying, To: StatusProcessing},
	{From: StatusFailed, To: StatusDead},
	{From: StatusQueued, To: StatusCanceled},
	{From: StatusRetrying, To: StatusCanceled},
	{From: StatusProcessing, To: StatusDead},
	{From: StatusProcessing, To: StatusQueued},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
