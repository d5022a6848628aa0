package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/recurfire/client"
	"github.com/RezaEskandarii/recurfire/client/test/mocks"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const targetName = "send_report"

type harness struct {
	clock     *mocks.Clock
	backend   *mocks.MemoryBackend
	handlers  *config.JobHandler
	broker    *mocks.MockMessageBroker
	lock      *mocks.MockDistributedLockManager
	tasks     *client.EnqueueJobsManager
	recurring *client.RecurringJobManager
	jm        *client.JobManager

	mu    sync.Mutex
	calls []map[string]any
}

func newHarness(t *testing.T, start time.Time) *harness {
	t.Helper()

	clock := mocks.NewClock(start)
	backend := mocks.NewMemoryBackend(clock)
	handlers := config.NewJobHandler()
	broker := &mocks.MockMessageBroker{}
	lockMgr := &mocks.MockDistributedLockManager{}
	metrics := client.NewMetrics("recurfire_test", prometheus.NewRegistry())

	tasks := client.NewEnqueueJobsManager(backend.Tasks(), lockMgr, handlers, "test-instance", nil, metrics)
	tasks.SetClock(clock.Now)

	events := client.NewEventPublisher(broker, "recurfire.events", "test-instance", nil)
	recurring := client.NewRecurringJobManager(backend.Jobs(), backend, tasks, lockMgr, events, metrics, nil)
	recurring.SetClock(clock.Now)
	require.NoError(t, recurring.RegisterTickHandler(handlers))

	h := &harness{
		clock:     clock,
		backend:   backend,
		handlers:  handlers,
		broker:    broker,
		lock:      lockMgr,
		tasks:     tasks,
		recurring: recurring,
		jm:        client.NewJobManager(backend.Tasks(), backend.Jobs(), handlers, tasks, recurring),
	}
	require.NoError(t, handlers.Register(targetName, func(ctx context.Context, args map[string]any) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.calls = append(h.calls, args)
		return nil
	}))
	return h
}

func (h *harness) runDue(t *testing.T) int {
	t.Helper()
	n, err := h.tasks.RunDue(context.Background(), 100)
	require.NoError(t, err)
	return n
}

func (h *harness) job(t *testing.T, id int64) *types.RecurringJob {
	t.Helper()
	job, err := h.jm.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func (h *harness) task(t *testing.T, id int64) *types.EnqueuedJob {
	t.Helper()
	task, err := h.jm.Task(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (h *harness) targetCalls() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]any(nil), h.calls...)
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
