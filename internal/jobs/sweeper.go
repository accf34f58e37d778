package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/repository"
)

// sweepLockKey is the Postgres advisory lock key that keeps concurrent
// workers from sweeping at the same time.
const sweepLockKey int64 = 0x6d696e6572_01

// Locker runs fn under a cluster-wide lock. *database.DB satisfies it.
type Locker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error)
}

// Sweeper fails jobs that stayed running longer than stuckAfter, which
// happens when a worker crashed mid-run.
type Sweeper struct {
	jobs       repository.JobRepository
	locker     Locker
	stuckAfter time.Duration
	interval   time.Duration
	clock      func() time.Time
	logger     zerolog.Logger
}

// NewSweeper creates a Sweeper. locker may be nil for single-process use.
func NewSweeper(jobs repository.JobRepository, locker Locker, stuckAfter, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if stuckAfter <= 0 {
		stuckAfter = 2 * time.Hour
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		jobs:       jobs,
		locker:     locker,
		stuckAfter: stuckAfter,
		interval:   interval,
		clock:      time.Now,
		logger:     logger.With().Str("component", "stuck_sweeper").Logger(),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("stuck_after", s.stuckAfter).Dur("interval", s.interval).Msg("starting stuck job sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx, s.stuckAfter); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("stuck job sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep fails every job running for longer than olderThan and returns their
// IDs. When another worker holds the sweep lock it does nothing.
func (s *Sweeper) Sweep(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	sweep := func(ctx context.Context) error {
		now := s.clock()
		entry := domain.LogEntry{At: now, Step: "STATUS", Message: domain.StuckMessage}
		var err error
		ids, err = s.jobs.FailStuck(ctx, now.Add(-olderThan), domain.StuckMessage, entry)
		return err
	}

	if s.locker == nil {
		if err := sweep(ctx); err != nil {
			return nil, fmt.Errorf("fail stuck jobs: %w", err)
		}
	} else {
		ran, err := s.locker.WithAdvisoryLock(ctx, sweepLockKey, sweep)
		if err != nil {
			return nil, fmt.Errorf("fail stuck jobs: %w", err)
		}
		if !ran {
			s.logger.Debug().Msg("sweep lock held elsewhere, skipping")
			return nil, nil
		}
	}

	for _, id := range ids {
		s.logger.Warn().Str("job_id", id.String()).Msg("marked stuck job as failed")
	}
	return ids, nil
}

// Preview lists the jobs Sweep would fail without changing them.
func (s *Sweeper) Preview(ctx context.Context, olderThan time.Duration) ([]*domain.Job, error) {
	jobs, err := s.jobs.ListStuck(ctx, s.clock().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	return jobs, nil
}
