package types

import (
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/recurfire/internal/state"
)

// EnqueuedJob is one row of the single-shot task table.
type EnqueuedJob struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Status      state.JobStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	ExecutedAt  *time.Time      `json:"executed_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Args decodes the payload. An empty payload decodes to an empty map.
func (j *EnqueuedJob) Args() (map[string]any, error) {
	args := map[string]any{}
	if len(j.Payload) == 0 || string(j.Payload) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(j.Payload, &args); err != nil {
		return nil, err
	}
	return args, nil
}
