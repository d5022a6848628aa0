package client

import (
	"context"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/cockroachdb/errors"
)

// List returns every recurring job ordered by id. All pages are read in one
// transaction so concurrent inserts and deletes cannot shift the offsets.
func (m *RecurringJobManager) List(ctx context.Context) ([]types.RecurringJob, error) {
	var all []types.RecurringJob
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		all = nil
		for page := 1; ; page++ {
			result, err := m.jobs.GetAll(ctx, page, listPageSize)
			if err != nil {
				return err
			}
			all = append(all, result.Items...)
			if !result.HasNextPage {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Page returns one page of recurring jobs.
func (m *RecurringJobManager) Page(ctx context.Context, page, pageSize int) (*types.PaginationResult[types.RecurringJob], error) {
	return m.jobs.GetAll(ctx, page, pageSize)
}

// Get returns nil when no job has the id.
func (m *RecurringJobManager) Get(ctx context.Context, id int64) (*types.RecurringJob, error) {
	job, err := m.jobs.FindByID(ctx, id)
	if errors.Is(err, custom_errors.ErrJobNotFound) {
		return nil, nil
	}
	return job, err
}

// GetByName returns nil when no job has the name.
func (m *RecurringJobManager) GetByName(ctx context.Context, name string) (*types.RecurringJob, error) {
	return m.jobs.FindByName(ctx, name)
}

// Delete cancels the job's pending tick and last dispatch and removes the record.
// It fails with ErrNotScheduled, without changing anything, when no tick is pending.
func (m *RecurringJobManager) Delete(ctx context.Context, id int64) error {
	var deleted *types.RecurringJob
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		job, err := m.jobs.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := m.deleteJob(ctx, job); err != nil {
			return err
		}
		deleted = job
		return nil
	})
	if err != nil {
		return err
	}
	m.afterDelete(ctx, deleted)
	return nil
}

func (m *RecurringJobManager) DeleteByName(ctx context.Context, name string) error {
	var deleted *types.RecurringJob
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		job, err := m.jobs.FindByName(ctx, name)
		if err != nil {
			return err
		}
		if job == nil {
			return errors.Wrapf(custom_errors.ErrJobNotFound, "name %q", name)
		}
		if err := m.deleteJob(ctx, job); err != nil {
			return err
		}
		deleted = job
		return nil
	})
	if err != nil {
		return err
	}
	m.afterDelete(ctx, deleted)
	return nil
}

func (m *RecurringJobManager) deleteJob(ctx context.Context, job *types.RecurringJob) error {
	if job.PendingTickTaskID == nil {
		return errors.Wrapf(custom_errors.ErrNotScheduled, "job %d", job.ID)
	}
	if err := m.cancelTask(ctx, *job.PendingTickTaskID); err != nil {
		return err
	}
	if job.LastDispatchTaskID != nil {
		if err := m.cancelTask(ctx, *job.LastDispatchTaskID); err != nil {
			return err
		}
	}
	return m.jobs.Delete(ctx, job.ID)
}

// cancelTask treats tasks that already finished or no longer exist as canceled.
func (m *RecurringJobManager) cancelTask(ctx context.Context, taskID int64) error {
	if _, err := m.scheduler.Cancel(ctx, taskID); err != nil && !IsTaskMissing(err) {
		return errors.Wrapf(err, "cancel task %d", taskID)
	}
	return nil
}

func (m *RecurringJobManager) afterDelete(ctx context.Context, job *types.RecurringJob) {
	m.metrics.RecordDeletion()
	m.events.Publish(ctx, types.EventDeleted, job, 0, "")
	m.logger.Infow("deleted recurring job", "job_id", job.ID, "job", job.DisplayName())
}
