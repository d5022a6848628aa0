package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/recurfire/internal/message_broaker"
)

// MockMessageBroker is a mock implementation of message_broaker.MessageBroker for testing.
// Without PublishFunc it records published messages.
type MockMessageBroker struct {
	PublishFunc func(ctx context.Context, queue string, msg message_broaker.Message) error
	ConsumeFunc func(ctx context.Context, queue string) (<-chan message_broaker.Message, error)
	CloseFunc   func() error

	mu        sync.Mutex
	Published []message_broaker.Message
}

func (m *MockMessageBroker) Publish(ctx context.Context, queue string, msg message_broaker.Message) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, queue, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, msg)
	return nil
}

func (m *MockMessageBroker) Consume(ctx context.Context, queue string) (<-chan message_broaker.Message, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, queue)
	}
	ch := make(chan message_broaker.Message)
	close(ch)
	return ch, nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Messages returns the bodies of the recorded messages.
func (m *MockMessageBroker) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	bodies := make([][]byte, 0, len(m.Published))
	for _, msg := range m.Published {
		bodies = append(bodies, msg.Body)
	}
	return bodies
}
