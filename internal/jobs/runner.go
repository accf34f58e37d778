package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/engine"
	"github.com/helixir/interaction-miner/internal/events"
	"github.com/helixir/interaction-miner/internal/observability"
	"github.com/helixir/interaction-miner/internal/repository"
)

// Engine runs one job's workflow. *engine.Engine satisfies it.
type Engine interface {
	Run(ctx context.Context, job engine.Job, state engine.State, rec engine.Recorder, stop engine.StopChecker) (engine.Result, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// StopPollInterval throttles stop-flag reads between node boundaries.
	StopPollInterval time.Duration
}

// Runner executes a job from running to its terminal status.
type Runner struct {
	engine       Engine
	jobs         repository.JobRepository
	interactions repository.InteractionRepository
	events       *events.Emitter
	metrics      *observability.Metrics
	logger       zerolog.Logger
	clock        func() time.Time
	cfg          RunnerConfig
}

// NewRunner creates a Runner.
func NewRunner(
	eng Engine,
	jobs repository.JobRepository,
	interactions repository.InteractionRepository,
	emitter *events.Emitter,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	cfg RunnerConfig,
) *Runner {
	return &Runner{
		engine:       eng,
		jobs:         jobs,
		interactions: interactions,
		events:       emitter,
		metrics:      metrics,
		logger:       logger.With().Str("component", "job_runner").Logger(),
		clock:        time.Now,
		cfg:          cfg,
	}
}

// Start moves a pending job to running. It returns
// domain.ErrInvalidStatusTransition when another worker already started it.
func (r *Runner) Start(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := r.jobs.Start(ctx, id, r.entry("START", "Job started"))
	if err != nil {
		return nil, err
	}
	r.events.JobStarted(ctx, job)
	return job, nil
}

// Claim moves up to limit pending jobs to running.
func (r *Runner) Claim(ctx context.Context, limit int) ([]*domain.Job, error) {
	claimed, err := r.jobs.ClaimPending(ctx, limit, r.entry("START", "Job started"))
	if err != nil {
		return nil, err
	}
	for _, job := range claimed {
		r.events.JobStarted(ctx, job)
	}
	return claimed, nil
}

// Abandon fails a started job that could not be executed.
func (r *Runner) Abandon(ctx context.Context, job *domain.Job) {
	logger := observability.WithJobContext(r.logger, job.ID.String(), job.WorkspaceID.String(), job.Topic)
	outcome := domain.JobOutcome{Status: domain.JobStatusFailed, ErrorMessage: domain.InterruptedMessage}
	_ = r.finish(ctx, job, outcome, r.clock(), logger)
}

// RunJob starts the pending job id and executes it.
func (r *Runner) RunJob(ctx context.Context, id uuid.UUID) (domain.JobOutcome, error) {
	job, err := r.Start(ctx, id)
	if err != nil {
		return domain.JobOutcome{}, fmt.Errorf("start job: %w", err)
	}
	return r.Execute(ctx, job)
}

// Execute drives a running job through the engine and persists its terminal
// status. The terminal write uses a context detached from ctx so that a
// cancelled run is still recorded as interrupted.
func (r *Runner) Execute(ctx context.Context, job *domain.Job) (outcome domain.JobOutcome, err error) {
	logger := observability.WithJobContext(r.logger, job.ID.String(), job.WorkspaceID.String(), job.Topic)
	ctx = observability.WithJob(ctx, job.ID.String(), job.WorkspaceID.String())
	started := r.clock()
	r.metrics.RecordJobStarted()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("job panicked")
			outcome = domain.JobOutcome{
				Status:       domain.JobStatusFailed,
				ErrorMessage: fmt.Sprintf("internal error: %v", p),
			}
			err = r.finish(ctx, job, outcome, started, logger)
		}
	}()

	rec := &recorder{job: job, jobs: r.jobs, interactions: r.interactions, events: r.events}
	stop := newStopFlag(r.jobs, job, r.cfg.StopPollInterval, r.clock)

	state := engine.NewState(job.Topic, job.MinInteractions)
	result, runErr := r.engine.Run(ctx, engine.Job{ID: job.ID, WorkspaceID: job.WorkspaceID}, state, rec, stop)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("job run failed")
	}

	outcome = Outcome(job, result, runErr)
	return outcome, r.finish(ctx, job, outcome, started, logger)
}

func (r *Runner) finish(ctx context.Context, job *domain.Job, outcome domain.JobOutcome, started time.Time, logger zerolog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	duration := r.clock().Sub(started)

	msg := outcome.Summary
	if outcome.Status == domain.JobStatusFailed {
		msg = "Job failed: " + outcome.ErrorMessage
	}
	if err := r.jobs.Finish(ctx, job.ID, outcome, r.entry("STATUS", msg)); err != nil {
		if errors.Is(err, domain.ErrInvalidStatusTransition) {
			// Already terminal, normally because the stuck-job sweeper failed it.
			r.metrics.RecordJobFinished(string(domain.JobStatusFailed), false, duration.Seconds())
			logger.Warn().Err(err).Str("status", string(outcome.Status)).Msg("job was finalized elsewhere, dropping outcome")
			return nil
		}
		logger.Error().Err(err).Str("status", string(outcome.Status)).Msg("failed to record job outcome")
		return fmt.Errorf("finish job: %w", err)
	}

	stopped := outcome.ErrorMessage == domain.StopMessage
	r.metrics.RecordJobFinished(string(outcome.Status), stopped, duration.Seconds())
	r.events.JobFinished(ctx, job, outcome, duration)

	logger.Info().
		Str("status", string(outcome.Status)).
		Int("interactions_found", outcome.InteractionsFound).
		Int("papers_checked", outcome.PapersChecked).
		Str("error", outcome.ErrorMessage).
		Dur("duration", duration).
		Msg("job finished")
	return nil
}

func (r *Runner) entry(step, msg string) domain.LogEntry {
	return domain.LogEntry{At: r.clock(), Step: step, Message: msg}
}

// Outcome maps an engine result to the job's terminal status. A stop and an
// interrupted run both end as failed and differ only in the message.
func Outcome(job *domain.Job, result engine.Result, err error) domain.JobOutcome {
	out := domain.JobOutcome{
		InteractionsFound: result.State.InteractionsFound(),
		PapersChecked:     result.State.PapersChecked(),
	}

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		out.Status = domain.JobStatusFailed
		out.ErrorMessage = domain.InterruptedMessage
	case err != nil:
		out.Status = domain.JobStatusFailed
		out.ErrorMessage = err.Error()
	case result.Reason == engine.ReasonStopRequested:
		out.Status = domain.JobStatusFailed
		out.ErrorMessage = domain.StopMessage
	case result.Reason == engine.ReasonCancelled:
		out.Status = domain.JobStatusFailed
		out.ErrorMessage = domain.InterruptedMessage
	case result.Reason == engine.ReasonTargetReached:
		out.Status = domain.JobStatusCompleted
		out.Summary = fmt.Sprintf("Completed: found %d interactions", out.InteractionsFound)
	case result.Reason == engine.ReasonStepLimit:
		out.Status = domain.JobStatusCompleted
		out.Summary = fmt.Sprintf("Completed: step limit reached with %d/%d interactions", out.InteractionsFound, job.MinInteractions)
	default:
		out.Status = domain.JobStatusCompleted
		out.Summary = fmt.Sprintf("Completed: search strategies exhausted with %d/%d interactions", out.InteractionsFound, job.MinInteractions)
	}
	return out
}
