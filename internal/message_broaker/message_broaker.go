package message_broaker

import "context"

// Message is one event on the wire. ID and Type travel as broker
// properties so consumers can dedupe and route without decoding Body.
type Message struct {
	ID   string
	Type string
	Body []byte
}

type MessageBroker interface {
	Publish(ctx context.Context, queue string, msg Message) error
	// Consume delivers messages until ctx is done or the broker closes.
	Consume(ctx context.Context, queue string) (<-chan Message, error)
	Close() error
}
