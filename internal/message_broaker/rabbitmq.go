package message_broaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const consumeBuffer = 1000

// RabbitMQOptions describes the durable exchange and queue events go through.
type RabbitMQOptions struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	opts    RabbitMQOptions
}

// NewRabbitMQ dials the broker and declares a direct exchange with one
// durable queue bound to it.
func NewRabbitMQ(opts RabbitMQOptions) (*RabbitMQ, error) {
	if opts.URL == "" || opts.Exchange == "" || opts.Queue == "" {
		return nil, errors.New("rabbitmq: url, exchange and queue are required")
	}

	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := declareTopology(ch, opts); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{conn: conn, channel: ch, opts: opts}, nil
}

func declareTopology(ch *amqp.Channel, opts RabbitMQOptions) error {
	if err := ch.ExchangeDeclare(opts.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", opts.Exchange, err)
	}
	if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", opts.Queue, err)
	}
	if err := ch.QueueBind(opts.Queue, opts.RoutingKey, opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", opts.Queue, err)
	}
	return nil
}

// Publish sends msg through the configured exchange. queue is only used to
// check the caller targets the queue this broker was declared with.
func (r *RabbitMQ) Publish(ctx context.Context, queue string, msg Message) error {
	if queue != "" && queue != r.opts.Queue {
		return fmt.Errorf("rabbitmq: queue %s is not bound, expected %s", queue, r.opts.Queue)
	}
	return r.channel.PublishWithContext(
		ctx,
		r.opts.Exchange,
		r.opts.RoutingKey,
		false,
		false,
		toPublishing(msg, time.Now()),
	)
}

func toPublishing(msg Message, now time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         msg.Type,
		Timestamp:    now,
		Body:         msg.Body,
	}
}

func fromDelivery(d amqp.Delivery) Message {
	return Message{ID: d.MessageId, Type: d.Type, Body: d.Body}
}

func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan Message, error) {
	if queue == "" {
		queue = r.opts.Queue
	}
	deliveries, err := r.channel.ConsumeWithContext(ctx, queue, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume %s: %w", queue, err)
	}

	out := make(chan Message, consumeBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- fromDelivery(d):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
