package mocks

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/state"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MemoryBackend keeps tasks and recurring jobs in memory. WithinTx restores
// both tables when fn fails, which is enough to observe all-or-nothing commits.
type MemoryBackend struct {
	mu         sync.Mutex
	clock      *Clock
	tasks      map[int64]*types.EnqueuedJob
	jobs       map[int64]*types.RecurringJob
	nextTaskID int64
	nextJobID  int64

	// BeforeUpdate, when set, runs at the start of UpdateTaskPointers and its
	// error is returned instead.
	BeforeUpdate func(id int64) error

	Commits   int
	Rollbacks int
}

func NewMemoryBackend(clock *Clock) *MemoryBackend {
	return &MemoryBackend{
		clock: clock,
		tasks: map[int64]*types.EnqueuedJob{},
		jobs:  map[int64]*types.RecurringJob{},
	}
}

func (b *MemoryBackend) Tasks() *MemoryTaskStore {
	return &MemoryTaskStore{b: b}
}

func (b *MemoryBackend) Jobs() *MemoryJobStore {
	return &MemoryJobStore{b: b}
}

type memTxKey struct{}

func (b *MemoryBackend) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	b.mu.Lock()
	tasks, jobs := cloneTasks(b.tasks), cloneJobs(b.jobs)
	nextTask, nextJob := b.nextTaskID, b.nextJobID
	b.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		b.mu.Lock()
		b.tasks, b.jobs = tasks, jobs
		b.nextTaskID, b.nextJobID = nextTask, nextJob
		b.Rollbacks++
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	b.Commits++
	b.mu.Unlock()
	return nil
}

// SetTaskStatus forces a task into status, e.g. to simulate a dispatch still running.
func (b *MemoryBackend) SetTaskStatus(id int64, status state.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tasks[id]; ok {
		t.Status = status
	}
}

// TasksNamed returns tasks for handler name ordered by id.
func (b *MemoryBackend) TasksNamed(name string) []types.EnqueuedJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.EnqueuedJob
	for _, t := range b.tasks {
		if t.Name == name {
			out = append(out, *cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *MemoryBackend) TaskCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

func (b *MemoryBackend) JobCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}

// MemoryTaskStore is the store.EnqueuedJobStore view of a MemoryBackend.
type MemoryTaskStore struct {
	b *MemoryBackend
}

func (s *MemoryTaskStore) Insert(ctx context.Context, jobName string, scheduledAt time.Time, maxAttempts int, args map[string]any) (int64, error) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return 0, err
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.nextTaskID++
	id := s.b.nextTaskID
	s.b.tasks[id] = &types.EnqueuedJob{
		ID:          id,
		Name:        jobName,
		Payload:     payload,
		Status:      state.StatusQueued,
		MaxAttempts: maxAttempts,
		ScheduledAt: scheduledAt.UTC(),
		CreatedAt:   s.b.clock.Now(),
	}
	return id, nil
}

func (s *MemoryTaskStore) FindByID(ctx context.Context, id int64) (*types.EnqueuedJob, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	t, ok := s.b.tasks[id]
	if !ok {
		return nil, errors.Wrapf(custom_errors.ErrScheduledTaskNotFound, "task %d", id)
	}
	return cloneTask(t), nil
}

func (s *MemoryTaskStore) Cancel(ctx context.Context, id int64) (bool, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	t, ok := s.b.tasks[id]
	if !ok {
		return false, errors.Wrapf(custom_errors.ErrScheduledTaskNotFound, "task %d", id)
	}
	if !state.IsValidTransition(t.Status, state.StatusCanceled) {
		return false, nil
	}
	now := s.b.clock.Now()
	t.Status = state.StatusCanceled
	t.FinishedAt = &now
	return true, nil
}

func (s *MemoryTaskStore) RemoveByID(ctx context.Context, id int64) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.tasks[id]; !ok {
		return errors.Wrapf(custom_errors.ErrScheduledTaskNotFound, "no job found with id %d", id)
	}
	delete(s.b.tasks, id)
	return nil
}

func (s *MemoryTaskStore) FetchDueJobs(ctx context.Context, page int, pageSize int, statuses []state.JobStatus, scheduledBefore *time.Time) (*types.PaginationResult[types.EnqueuedJob], error) {
	s.b.mu.Lock()
	var due []types.EnqueuedJob
	for _, t := range s.b.tasks {
		if len(statuses) > 0 && !containsStatus(statuses, t.Status) {
			continue
		}
		if scheduledBefore != nil && t.ScheduledAt.After(*scheduledBefore) {
			continue
		}
		due = append(due, *cloneTask(t))
	}
	s.b.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	return paginate(due, page, pageSize), nil
}

func (s *MemoryTaskStore) LockJob(ctx context.Context, jobID int64, lockedBy string) (bool, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	t, ok := s.b.tasks[jobID]
	if !ok || !state.IsValidTransition(t.Status, state.StatusProcessing) {
		return false, nil
	}
	now := s.b.clock.Now()
	t.Status = state.StatusProcessing
	t.LockedBy = &lockedBy
	t.LockedAt = &now
	t.ExecutedAt = &now
	return true, nil
}

func (s *MemoryTaskStore) MarkSuccess(ctx context.Context, jobID int64) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	t, ok := s.b.tasks[jobID]
	if !ok || !state.IsValidTransition(t.Status, state.StatusSucceeded) {
		return nil
	}
	now := s.b.clock.Now()
	t.Status = state.StatusSucceeded
	t.FinishedAt = &now
	t.LockedBy, t.LockedAt, t.LastError = nil, nil, nil
	return nil
}

func (s *MemoryTaskStore) MarkFailure(ctx context.Context, jobID int64, errMsg string, attempts int, maxAttempts int) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	t, ok := s.b.tasks[jobID]
	if !ok || !state.IsValidTransition(t.Status, state.StatusFailed) {
		return nil
	}
	now := s.b.clock.Now()
	t.Attempts++
	t.LastError = &errMsg
	t.Status = state.StatusFailed
	if attempts >= maxAttempts {
		t.Status = state.StatusDead
	}
	t.FinishedAt = &now
	t.LockedBy, t.LockedAt = nil, nil
	return nil
}

func (s *MemoryTaskStore) MarkRetryFailedJobs(ctx context.Context) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	next := s.b.clock.Now().Add(time.Minute)
	for _, t := range s.b.tasks {
		if state.IsValidTransition(t.Status, state.StatusRetrying) && t.Attempts < t.MaxAttempts {
			t.Status = state.StatusRetrying
			t.ScheduledAt = next
		}
	}
	return nil
}

func (s *MemoryTaskStore) UnlockStaleJobs(ctx context.Context, timeout time.Duration) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	cutoff := s.b.clock.Now().Add(-timeout)
	for _, t := range s.b.tasks {
		if state.IsValidTransition(t.Status, state.StatusQueued) && t.LockedAt != nil && !t.LockedAt.After(cutoff) {
			t.Status = state.StatusQueued
			t.LockedBy, t.LockedAt = nil, nil
		}
	}
	return nil
}

func (s *MemoryTaskStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	counts := map[state.JobStatus]int{}
	for _, status := range state.AllStatuses {
		counts[status] = 0
	}
	for _, t := range s.b.tasks {
		counts[t.Status]++
	}
	return counts, nil
}

func (s *MemoryTaskStore) Close() error { return nil }

// MemoryJobStore is the store.RecurringJobStore view of a MemoryBackend.
type MemoryJobStore struct {
	b *MemoryBackend
}

func (s *MemoryJobStore) Create(ctx context.Context, job *types.RecurringJob) (int64, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if job.Name != nil {
		for _, existing := range s.b.jobs {
			if existing.Name != nil && *existing.Name == *job.Name {
				return 0, errors.Wrapf(custom_errors.ErrDuplicateName, "name %q", *job.Name)
			}
		}
	}
	s.b.nextJobID++
	job.ID = s.b.nextJobID
	job.Version = 1
	job.CreatedAt = s.b.clock.Now()
	job.UpdatedAt = job.CreatedAt
	s.b.jobs[job.ID] = cloneJob(job)
	return job.ID, nil
}

func (s *MemoryJobStore) FindByID(ctx context.Context, id int64) (*types.RecurringJob, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	j, ok := s.b.jobs[id]
	if !ok {
		return nil, errors.Wrapf(custom_errors.ErrJobNotFound, "job %d", id)
	}
	return cloneJob(j), nil
}

func (s *MemoryJobStore) FindByName(ctx context.Context, name string) (*types.RecurringJob, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for _, j := range s.b.jobs {
		if j.Name != nil && *j.Name == name {
			return cloneJob(j), nil
		}
	}
	return nil, nil
}

func (s *MemoryJobStore) GetAll(ctx context.Context, page int, pageSize int) (*types.PaginationResult[types.RecurringJob], error) {
	s.b.mu.Lock()
	all := make([]types.RecurringJob, 0, len(s.b.jobs))
	for _, j := range s.b.jobs {
		all = append(all, *cloneJob(j))
	}
	s.b.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, page, pageSize), nil
}

func (s *MemoryJobStore) UpdateTaskPointers(ctx context.Context, id int64, expectedVersion int64, pendingTickTaskID, lastDispatchTaskID *int64) error {
	if s.b.BeforeUpdate != nil {
		if err := s.b.BeforeUpdate(id); err != nil {
			return err
		}
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	j, ok := s.b.jobs[id]
	if !ok {
		return errors.Wrapf(custom_errors.ErrJobNotFound, "job %d", id)
	}
	if j.Version != expectedVersion {
		return errors.Wrapf(custom_errors.ErrWriteConflict, "job %d changed since version %d", id, expectedVersion)
	}
	j.PendingTickTaskID = copyID(pendingTickTaskID)
	j.LastDispatchTaskID = copyID(lastDispatchTaskID)
	j.Version++
	j.UpdatedAt = s.b.clock.Now()
	return nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, id int64) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.jobs[id]; !ok {
		return errors.Wrapf(custom_errors.ErrJobNotFound, "job %d", id)
	}
	delete(s.b.jobs, id)
	return nil
}

func (s *MemoryJobStore) Close() error { return nil }

func paginate[T any](items []T, page, pageSize int) *types.PaginationResult[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = len(items) + 1
	}
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return types.NewPage(items[start:end], total, page, pageSize)
}

func containsStatus(statuses []state.JobStatus, s state.JobStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTask(t *types.EnqueuedJob) *types.EnqueuedJob {
	c := *t
	c.Payload = append([]byte(nil), t.Payload...)
	return &c
}

func cloneJob(j *types.RecurringJob) *types.RecurringJob {
	c := *j
	c.PendingTickTaskID = copyID(j.PendingTickTaskID)
	c.LastDispatchTaskID = copyID(j.LastDispatchTaskID)
	if j.Name != nil {
		name := *j.Name
		c.Name = &name
	}
	return &c
}

func cloneTasks(in map[int64]*types.EnqueuedJob) map[int64]*types.EnqueuedJob {
	out := make(map[int64]*types.EnqueuedJob, len(in))
	for id, t := range in {
		out[id] = cloneTask(t)
	}
	return out
}

func cloneJobs(in map[int64]*types.RecurringJob) map[int64]*types.RecurringJob {
	out := make(map[int64]*types.RecurringJob, len(in))
	for id, j := range in {
		out[id] = cloneJob(j)
	}
	return out
}
