package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/observability"
	"github.com/helixir/interaction-miner/internal/temporal"
	"github.com/helixir/interaction-miner/internal/temporal/resilience"
)

// DefaultHeartbeatInterval is how often ExecuteJob heartbeats while the
// engine runs. It must be well under the workflow's heartbeat timeout.
const DefaultHeartbeatInterval = 20 * time.Second

// JobRunner runs jobs. *jobs.Runner satisfies it.
type JobRunner interface {
	Start(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	Execute(ctx context.Context, job *domain.Job) (domain.JobOutcome, error)
	Abandon(ctx context.Context, job *domain.Job)
}

// JobReader loads jobs.
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// Stopper sets the persisted stop flag. *jobs.Controller satisfies it.
type Stopper interface {
	RequestStop(ctx context.Context, id uuid.UUID) error
}

// JobActivities holds the dependencies of the job activities. Methods on
// this struct are registered as Temporal activities via the worker.
type JobActivities struct {
	runner            JobRunner
	jobs              JobReader
	stopper           Stopper
	heartbeatInterval time.Duration
}

// NewJobActivities creates JobActivities.
func NewJobActivities(runner JobRunner, jobs JobReader, stopper Stopper) *JobActivities {
	return &JobActivities{
		runner:            runner,
		jobs:              jobs,
		stopper:           stopper,
		heartbeatInterval: DefaultHeartbeatInterval,
	}
}

// StartJob moves the job from pending to running. A job that is no longer
// pending fails with a non-retryable job_state error.
func (a *JobActivities) StartJob(ctx context.Context, input JobInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("starting job", "jobID", input.JobID)

	if _, err := a.runner.Start(ctx, input.JobID); err != nil {
		return resilience.ToActivityError(fmt.Errorf("start job: %w", err))
	}
	return nil
}

// ExecuteJob runs the engine for a running job until it reaches a terminal
// status. It heartbeats while the engine works so that a crashed worker is
// detected by the heartbeat timeout rather than the whole run timeout.
func (a *JobActivities) ExecuteJob(ctx context.Context, input JobInput) (*temporal.JobWorkflowResult, error) {
	logger := activity.GetLogger(ctx)

	job, err := a.jobs.Get(ctx, input.JobID)
	if err != nil {
		return nil, resilience.ToActivityError(fmt.Errorf("load job: %w", err))
	}
	if job.Status != domain.JobStatusRunning {
		return nil, resilience.ToActivityError(fmt.Errorf("%w: job %s is %s", domain.ErrInvalidStatusTransition, job.ID, job.Status))
	}

	info := activity.GetInfo(ctx)
	ctx = observability.WithWorkflow(ctx, info.WorkflowExecution.ID, info.WorkflowExecution.RunID)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go a.heartbeat(hbCtx)

	outcome, err := a.runner.Execute(ctx, job)
	if err != nil {
		logger.Error("job execution failed", "jobID", input.JobID, "error", err)
		return nil, resilience.ToActivityError(err)
	}

	logger.Info("job finished", "jobID", input.JobID, "status", outcome.Status)
	return &temporal.JobWorkflowResult{
		Status:            outcome.Status,
		InteractionsFound: outcome.InteractionsFound,
		PapersChecked:     outcome.PapersChecked,
		ErrorMessage:      outcome.ErrorMessage,
	}, nil
}

func (a *JobActivities) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(a.heartbeatInterval)
	defer ticker.Stop()
	for {
		activity.RecordHeartbeat(ctx, "running")
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RequestStop sets the job's stop flag. A job that already finished is
// not an error.
func (a *JobActivities) RequestStop(ctx context.Context, input JobInput) error {
	err := a.stopper.RequestStop(ctx, input.JobID)
	if errors.Is(err, domain.ErrJobNotRunning) {
		activity.GetLogger(ctx).Info("stop ignored, job not running", "jobID", input.JobID)
		return nil
	}
	return resilience.ToActivityError(err)
}

// AbandonJob records a job whose run was lost, for example because the
// worker executing it died, as interrupted. It does nothing when the job
// already reached a terminal status.
func (a *JobActivities) AbandonJob(ctx context.Context, input JobInput) error {
	job, err := a.jobs.Get(ctx, input.JobID)
	if err != nil {
		return resilience.ToActivityError(fmt.Errorf("load job: %w", err))
	}
	if job.Status != domain.JobStatusRunning {
		return nil
	}
	a.runner.Abandon(ctx, job)
	return nil
}
