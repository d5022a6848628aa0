package types

import "time"

type EventType string

const (
	EventRegistered EventType = "registered"
	EventDispatched EventType = "dispatched"
	EventSkipped    EventType = "skipped"
	EventStalled    EventType = "stalled"
	EventRearmed    EventType = "rearmed"
	EventDeleted    EventType = "deleted"
)

// RecurringJobEvent is published to the message broker on lifecycle changes.
type RecurringJobEvent struct {
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	JobID    int64     `json:"job_id"`
	JobName  string    `json:"job_name,omitempty"`
	TaskID   int64     `json:"task_id,omitempty"`
	Instance string    `json:"instance"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}
