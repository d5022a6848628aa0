package types

import (
	"strconv"
	"time"
)

// RecurringJob is the persisted record of a registered schedule.
// PendingTickTaskID points at the one outstanding tick; LastDispatchTaskID at
// the most recent invocation of the target function.
type RecurringJob struct {
	ID                 int64          `json:"id"`
	Name               *string        `json:"name,omitempty"`
	TargetFunction     string         `json:"target_function"`
	Args               map[string]any `json:"args"`
	Schedule           Schedule       `json:"schedule"`
	PendingTickTaskID  *int64         `json:"pending_tick_task_id,omitempty"`
	LastDispatchTaskID *int64         `json:"last_dispatch_task_id,omitempty"`
	Version            int64          `json:"version"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DisplayName is the job name, or "#<id>" for anonymous jobs.
func (j *RecurringJob) DisplayName() string {
	if j.Name != nil && *j.Name != "" {
		return *j.Name
	}
	return "#" + strconv.FormatInt(j.ID, 10)
}
