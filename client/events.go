package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/RezaEskandarii/recurfire/internal/message_broaker"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher sends lifecycle events to a message broker.
// With a nil broker every call is a no-op.
type EventPublisher struct {
	broker   message_broaker.MessageBroker
	queue    string
	instance string
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewEventPublisher(broker message_broaker.MessageBroker, queue, instance string, log *zap.SugaredLogger) *EventPublisher {
	if log == nil {
		log = logger.Logger
	}
	return &EventPublisher{
		broker:   broker,
		queue:    queue,
		instance: instance,
		logger:   log,
		now:      time.Now,
	}
}

// Publish never fails the caller; broker errors are logged.
func (p *EventPublisher) Publish(ctx context.Context, eventType types.EventType, job *types.RecurringJob, taskID int64, reason string) {
	if p == nil || p.broker == nil {
		return
	}

	event := types.RecurringJobEvent{
		ID:       uuid.NewString(),
		Type:     eventType,
		TaskID:   taskID,
		Instance: p.instance,
		Reason:   reason,
		At:       p.now().UTC(),
	}
	if job != nil {
		event.JobID = job.ID
		if job.Name != nil {
			event.JobName = *job.Name
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Warnw("encode event", "type", eventType, "error", err)
		return
	}
	msg := message_broaker.Message{ID: event.ID, Type: string(eventType), Body: body}
	if err := p.broker.Publish(ctx, p.queue, msg); err != nil {
		p.logger.Warnw("publish event", "type", eventType, "job_id", event.JobID, "error", err)
	}
}
