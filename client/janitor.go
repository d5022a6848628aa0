package client

import (
	"context"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
)

// Sweep re-arms recurring jobs whose pending tick is unset, missing or
// finished, and returns how many it re-armed. Records changed by a concurrent
// tick or delete are left alone.
func (m *RecurringJobManager) Sweep(ctx context.Context) (int, error) {
	jobs, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	rearmed := 0
	for i := range jobs {
		job := &jobs[i]

		stalled, anchor, err := m.stalled(ctx, job)
		if err != nil {
			m.logger.Warnw("janitor status check", "job_id", job.ID, "error", err)
			continue
		}
		if !stalled {
			continue
		}

		m.events.Publish(ctx, types.EventStalled, job, 0, "pending tick is not active")
		next, err := m.rearmTime(job, anchor)
		if err != nil {
			m.logger.Errorw("janitor next fire time", "job_id", job.ID, "error", err)
			continue
		}

		var tickID int64
		err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
			tickID, err = m.scheduler.ScheduleAt(ctx, next, constants.TickHandlerName, tickArgs(job.ID))
			if err != nil {
				return err
			}
			return m.jobs.UpdateTaskPointers(ctx, job.ID, job.Version, &tickID, job.LastDispatchTaskID)
		})
		if errors.IsAny(err, custom_errors.ErrJobNotFound, custom_errors.ErrWriteConflict) {
			m.logger.Debugw("job changed during sweep", "job_id", job.ID, "error", err)
			continue
		}
		if err != nil {
			return rearmed, err
		}

		rearmed++
		m.metrics.RecordJanitorRearm()
		m.events.Publish(ctx, types.EventRearmed, job, tickID, "")
		m.logger.Infow("re-armed stalled job", "job_id", job.ID, "job", job.DisplayName(), "next_fire", next)
	}
	return rearmed, nil
}

// stalled also returns the scheduled time of the dead tick when it is known.
func (m *RecurringJobManager) stalled(ctx context.Context, job *types.RecurringJob) (bool, *time.Time, error) {
	if job.PendingTickTaskID == nil {
		return true, nil, nil
	}
	tick, err := m.scheduler.Get(ctx, *job.PendingTickTaskID)
	if IsTaskMissing(err) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if tick.Status.IsTerminal() {
		return true, &tick.ScheduledAt, nil
	}
	return false, nil, nil
}

// rearmTime keeps an interval job on its original phase: the first
// anchor + k*period strictly after now. Cron jobs take their next fire time.
func (m *RecurringJobManager) rearmTime(job *types.RecurringJob, anchor *time.Time) (time.Time, error) {
	now := m.now()
	if job.Schedule.Kind != types.ScheduleKindInterval || anchor == nil {
		return job.Schedule.NextFireTime(now)
	}

	period := job.Schedule.Period()
	if anchor.After(now) {
		return *anchor, nil
	}
	missed := now.Sub(*anchor)/period + 1
	return anchor.Add(missed * period), nil
}

// StartJanitor sweeps every interval while holding constants.JanitorLock.
// Instances that do not get the lock skip the round.
func (m *RecurringJobManager) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepLocked(ctx)
		}
	}
}

func (m *RecurringJobManager) sweepLocked(ctx context.Context) {
	acquired, err := m.lock.TryAcquire(ctx, constants.JanitorLock)
	if err != nil {
		m.logger.Warnw("janitor lock", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := m.lock.Release(ctx, constants.JanitorLock); err != nil {
			m.logger.Warnw("release janitor lock", "error", err)
		}
	}()

	n, err := m.Sweep(ctx)
	if err != nil {
		m.logger.Errorw("janitor sweep", "error", err)
		return
	}
	if n > 0 {
		m.logger.Infow("janitor sweep finished", "rearmed", n)
	}
}
