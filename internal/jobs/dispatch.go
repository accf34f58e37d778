package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/repository"
)

// Dispatcher hands a pending job to whatever will run it. Dispatch must not
// block on the run itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *domain.Job) error
}

// LocalDispatcher runs jobs in-process on a Pool.
type LocalDispatcher struct {
	pool   *Pool
	runner *Runner
	logger zerolog.Logger
}

// NewLocalDispatcher creates a LocalDispatcher.
func NewLocalDispatcher(pool *Pool, runner *Runner, logger zerolog.Logger) *LocalDispatcher {
	return &LocalDispatcher{
		pool:   pool,
		runner: runner,
		logger: logger.With().Str("component", "local_dispatcher").Logger(),
	}
}

// Dispatch starts the job if a slot is free. Otherwise the job stays pending
// and the Poller claims it once capacity frees up.
func (d *LocalDispatcher) Dispatch(_ context.Context, job *domain.Job) error {
	started, err := d.pool.TryGo("job "+job.ID.String(), func(ctx context.Context) {
		if _, err := d.runner.RunJob(ctx, job.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidStatusTransition) {
				d.logger.Debug().Str("job_id", job.ID.String()).Msg("job already started elsewhere")
				return
			}
			d.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("job run failed")
		}
	})
	if err != nil {
		return err
	}
	if !started {
		d.logger.Info().Str("job_id", job.ID.String()).Msg("pool full, job queued")
	}
	return nil
}

// QueueDispatcher leaves the job pending for a worker's Poller to claim.
// Processes that do not run jobs themselves, such as the CLI, use it.
type QueueDispatcher struct {
	logger zerolog.Logger
}

// NewQueueDispatcher creates a QueueDispatcher.
func NewQueueDispatcher(logger zerolog.Logger) *QueueDispatcher {
	return &QueueDispatcher{logger: logger.With().Str("component", "queue_dispatcher").Logger()}
}

// Dispatch only logs; the job is already pending.
func (d *QueueDispatcher) Dispatch(_ context.Context, job *domain.Job) error {
	d.logger.Info().Str("job_id", job.ID.String()).Msg("job queued for a worker")
	return nil
}

// Poller claims pending jobs whenever the pool has free slots. It picks up
// jobs created by other processes and jobs queued while the pool was full.
type Poller struct {
	jobs     repository.JobRepository
	pool     *Pool
	runner   *Runner
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a Poller.
func NewPoller(jobs repository.JobRepository, pool *Pool, runner *Runner, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		jobs:     jobs,
		pool:     pool,
		runner:   runner,
		interval: interval,
		logger:   logger.With().Str("component", "job_poller").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("starting pending job poller")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("failed to claim pending jobs")
		}
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("pending job poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll claims as many pending jobs as there are free slots and starts them.
// It returns the number of jobs started.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	free := p.pool.Free()
	if free == 0 {
		return 0, nil
	}

	claimed, err := p.runner.Claim(ctx, free)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, job := range claimed {
		job := job
		err := p.pool.Go(ctx, "job "+job.ID.String(), func(ctx context.Context) {
			if _, err := p.runner.Execute(ctx, job); err != nil {
				p.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("job run failed")
			}
		})
		if err != nil {
			// The job is already running in the store; record it as interrupted.
			p.runner.Abandon(ctx, job)
			continue
		}
		started++
	}
	if started > 0 {
		p.logger.Info().Int("count", started).Msg("claimed pending jobs")
	}
	return started, nil
}
