package config

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc is the signature every callable target implements.
type HandlerFunc func(ctx context.Context, args map[string]any) error

type JobHandler struct {
	handlers map[string]HandlerFunc
	mutex    sync.RWMutex
}

func NewJobHandler() *JobHandler {
	return &JobHandler{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a new job handler by name.
func (jh *JobHandler) Register(name string, handler HandlerFunc) error {
	if name == "" || handler == nil {
		return fmt.Errorf("handler must have a name and function")
	}

	jh.mutex.Lock()
	defer jh.mutex.Unlock()

	if _, exists := jh.handlers[name]; exists {
		return fmt.Errorf("handler '%s' already registered", name)
	}
	jh.handlers[name] = handler
	return nil
}

func (jh *JobHandler) Exists(name string) bool {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	_, exists := jh.handlers[name]
	return exists
}

func (jh *JobHandler) Execute(ctx context.Context, name string, args map[string]any) error {
	jh.mutex.RLock()
	handler, exists := jh.handlers[name]
	jh.mutex.RUnlock()

	if !exists {
		return fmt.Errorf("handler '%s' not found", name)
	}
	return handler(ctx, args)
}

// List returns the registered names in lexical order.
func (jh *JobHandler) List() []string {
	jh.mutex.RLock()
	defer jh.mutex.RUnlock()

	names := make([]string, 0, len(jh.handlers))
	for name := range jh.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type taskIDKey struct{}

// WithTaskID attaches the id of the executing task to ctx.
func WithTaskID(ctx context.Context, taskID int64) context.Context {
	return context.WithValue(ctx, taskIDKey{}, taskID)
}

// TaskIDFromContext returns the id set by WithTaskID.
func TaskIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(taskIDKey{}).(int64)
	return id, ok
}
