package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/RezaEskandarii/recurfire/custom_errors"
	"github.com/RezaEskandarii/recurfire/internal/constants"
	"github.com/RezaEskandarii/recurfire/internal/lock"
	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/RezaEskandarii/recurfire/internal/store"
	"github.com/RezaEskandarii/recurfire/types"
	"github.com/RezaEskandarii/recurfire/types/config"
	cerrors "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const listPageSize = 100

// RegisterRequest describes a recurring job. An empty Name registers an anonymous job.
type RegisterRequest struct {
	Name           string
	Schedule       types.Schedule
	TargetFunction string
	Args           map[string]any
}

// RecurringJobManager keeps recurring jobs firing by chaining one-shot tick
// tasks on a TaskScheduler. Every state change runs in one store transaction.
type RecurringJobManager struct {
	jobs      store.RecurringJobStore
	tx        store.Transactor
	scheduler TaskScheduler
	lock      lock.DistributedLockManager
	events    *EventPublisher
	metrics   *Metrics
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewRecurringJobManager(
	jobs store.RecurringJobStore,
	tx store.Transactor,
	scheduler TaskScheduler,
	lock lock.DistributedLockManager,
	events *EventPublisher,
	metrics *Metrics,
	log *zap.SugaredLogger,
) *RecurringJobManager {
	return &RecurringJobManager{
		jobs:      jobs,
		tx:        tx,
		scheduler: scheduler,
		lock:      lock,
		events:    events,
		metrics:   metrics,
		logger:    logger.Named(log, "recurring"),
		now:       time.Now,
	}
}

func (m *RecurringJobManager) SetClock(now func() time.Time) {
	m.now = now
}

// RegisterTickHandler installs the handler that runs ticks on jh.
func (m *RecurringJobManager) RegisterTickHandler(jh *config.JobHandler) error {
	return jh.Register(constants.TickHandlerName, m.handleTick)
}

// Register validates req, stores the record and arms its first tick.
func (m *RecurringJobManager) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	if err := validateRequest(req); err != nil {
		return 0, err
	}

	now := m.now()
	firstFire, err := req.Schedule.NextFireTime(now)
	if err != nil {
		return 0, err
	}

	job := &types.RecurringJob{
		TargetFunction: req.TargetFunction,
		Args:           req.Args,
		Schedule:       req.Schedule,
	}
	if req.Name != "" {
		name := req.Name
		job.Name = &name
	}

	err = m.tx.WithinTx(ctx, func(ctx context.Context) error {
		if job.Name != nil {
			existing, err := m.jobs.FindByName(ctx, *job.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				return cerrors.Wrapf(custom_errors.ErrDuplicateName, "name %q", *job.Name)
			}
		}

		if _, err := m.jobs.Create(ctx, job); err != nil {
			return err
		}

		tickID, err := m.scheduler.ScheduleAt(ctx, firstFire, constants.TickHandlerName, tickArgs(job.ID))
		if err != nil {
			return cerrors.Wrap(err, "schedule first tick")
		}

		if err := m.jobs.UpdateTaskPointers(ctx, job.ID, job.Version, &tickID, nil); err != nil {
			return err
		}
		job.PendingTickTaskID = &tickID
		job.Version++
		return nil
	})
	if err != nil {
		m.logger.Warnw("register failed", "job", req.Name, "target", req.TargetFunction, "error", err)
		return 0, err
	}

	m.metrics.RecordRegistration(string(req.Schedule.Kind))
	m.events.Publish(ctx, types.EventRegistered, job, *job.PendingTickTaskID, "")
	m.logger.Infow("registered recurring job",
		"job_id", job.ID,
		"job", job.DisplayName(),
		"schedule", req.Schedule.String(),
		"first_fire", firstFire,
	)
	return job.ID, nil
}

func validateRequest(req RegisterRequest) error {
	if strings.TrimSpace(req.TargetFunction) == "" {
		verr := &custom_errors.ValidationError{}
		verr.Add(errors.New("target function is required"))
		return verr
	}
	if req.TargetFunction == constants.TickHandlerName {
		verr := &custom_errors.ValidationError{}
		verr.Add(cerrors.Newf("%q is reserved", constants.TickHandlerName))
		return verr
	}
	return req.Schedule.Validate()
}

func tickArgs(jobID int64) map[string]any {
	return map[string]any{constants.TickJobIDArg: jobID}
}
