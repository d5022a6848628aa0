package client

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/RezaEskandarii/recurfire/types/config"
	"github.com/cockroachdb/errors"
)

// Tick outcomes recorded in ticks_total.
const (
	tickDispatched = "dispatched"
	tickSkipped    = "skipped"
	tickOrphaned   = "orphaned"
	tickIntegrity  = "integrity"
	tickFailed     = "failed"
)

func (m *RecurringJobManager) handleTick(ctx context.Context, args map[string]any) error {
	jobID, err := jobIDFromArgs(args)
	if err != nil {
		return errors.Mark(err, custom_errors.ErrTickIntegrity)
	}
	return m.Tick(ctx, jobID)
}

// Tick fires one occurrence of a recurring job: it dispatches the target
// unless the previous dispatch is still active, then arms the next tick.
// Dispatch, next tick and record update commit together or not at all.
func (m *RecurringJobManager) Tick(ctx context.Context, jobID int64) error {
	job, err := m.jobs.FindByID(ctx, jobID)
	if errors.Is(err, custom_errors.ErrJobNotFound) {
		m.metrics.RecordTick(tickOrphaned)
		m.logger.Infow("tick for deleted job", "job_id", jobID)
		return nil
	}
	if err != nil {
		m.metrics.RecordTick(tickFailed)
		return err
	}

	tick, err := m.verifyTick(ctx, job)
	if err != nil {
		m.metrics.RecordTick(tickIntegrity)
		m.logger.Errorw("tick integrity check failed", "job_id", job.ID, "job", job.DisplayName(), "error", err)
		return err
	}

	skip, err := m.previousDispatchActive(ctx, job)
	if err != nil {
		m.metrics.RecordTick(tickFailed)
		return err
	}

	next, err := job.Schedule.NextFireTime(tick.ScheduledAt)
	if err != nil {
		m.metrics.RecordTick(tickFailed)
		return err
	}

	lastDispatch := job.LastDispatchTaskID
	var nextTick int64
	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if !skip {
			dispatchID, err := m.scheduler.ScheduleAfter(ctx, 0, job.TargetFunction, job.Args)
			if err != nil {
				return errors.Wrap(err, "dispatch target")
			}
			lastDispatch = &dispatchID
		}

		nextTick, err = m.scheduler.ScheduleAt(ctx, next, constants.TickHandlerName, tickArgs(job.ID))
		if err != nil {
			return errors.Wrap(err, "schedule next tick")
		}

		return m.jobs.UpdateTaskPointers(ctx, job.ID, job.Version, &nextTick, lastDispatch)
	})
	if errors.Is(err, custom_errors.ErrJobNotFound) {
		m.metrics.RecordTick(tickOrphaned)
		m.logger.Infow("job deleted during tick", "job_id", job.ID)
		return nil
	}
	if err != nil {
		m.metrics.RecordTick(tickFailed)
		m.metrics.RecordRearmFailure()
		m.logger.Errorw("re-arm failed", "job_id", job.ID, "job", job.DisplayName(), "error", err)
		return err
	}

	if skip {
		m.metrics.RecordTick(tickSkipped)
		m.events.Publish(ctx, types.EventSkipped, job, *job.LastDispatchTaskID, "previous dispatch still active")
		m.logger.Infow("previous dispatch still active, skipping", "job_id", job.ID, "task_id", *job.LastDispatchTaskID, "next_fire", next)
	} else {
		m.metrics.RecordTick(tickDispatched)
		m.events.Publish(ctx, types.EventDispatched, job, *lastDispatch, "")
		m.logger.Debugw("dispatched", "job_id", job.ID, "task_id", *lastDispatch, "next_fire", next)
	}
	return nil
}

// verifyTick checks that the record's pending tick is the one being executed
// and returns that task.
func (m *RecurringJobManager) verifyTick(ctx context.Context, job *types.RecurringJob) (*types.EnqueuedJob, error) {
	if job.PendingTickTaskID == nil {
		return nil, errors.Wrapf(custom_errors.ErrNotScheduled, "job %d", job.ID)
	}
	pending := *job.PendingTickTaskID

	tick, err := m.scheduler.Get(ctx, pending)
	if err != nil {
		return nil, err
	}
	if !tick.Status.IsActive() {
		return nil, errors.Wrapf(custom_errors.ErrTickIntegrity, "pending tick %d of job %d is %s", pending, job.ID, tick.Status)
	}
	if running, ok := config.TaskIDFromContext(ctx); ok && running != pending {
		return nil, errors.Wrapf(custom_errors.ErrTickIntegrity, "task %d is not the pending tick %d of job %d", running, pending, job.ID)
	}
	return tick, nil
}

func (m *RecurringJobManager) previousDispatchActive(ctx context.Context, job *types.RecurringJob) (bool, error) {
	if job.LastDispatchTaskID == nil {
		return false, nil
	}
	status, err := m.scheduler.Status(ctx, *job.LastDispatchTaskID)
	if IsTaskMissing(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status.IsActive(), nil
}

func jobIDFromArgs(args map[string]any) (int64, error) {
	raw, ok := args[constants.TickJobIDArg]
	if !ok {
		return 0, errors.Newf("tick payload has no %q", constants.TickJobIDArg)
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, errors.Newf("tick payload has invalid %q: %v", constants.TickJobIDArg, raw)
}
