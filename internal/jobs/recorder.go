package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/events"
	"github.com/helixir/interaction-miner/internal/repository"
)

// recorder persists one job's progress. It implements engine.Recorder.
type recorder struct {
	job          *domain.Job
	jobs         repository.JobRepository
	interactions repository.InteractionRepository
	events       *events.Emitter
}

func (r *recorder) Progress(ctx context.Context, update domain.ProgressUpdate) error {
	return r.jobs.AppendProgress(ctx, r.job.ID, update)
}

func (r *recorder) RecordInteraction(ctx context.Context, interaction domain.Interaction, update domain.ProgressUpdate) (bool, error) {
	inserted, err := r.interactions.InsertWithProgress(ctx, &interaction, update)
	if err != nil || !inserted {
		return inserted, err
	}
	r.events.InteractionStored(ctx, r.job, interaction)
	return true, nil
}

// stopFlag reads the persisted stop flag, at most once per interval. A zero
// interval reads it at every node boundary.
type stopFlag struct {
	read     func(ctx context.Context) (bool, error)
	interval time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	last    time.Time
	stopped bool
}

func newStopFlag(jobs repository.JobRepository, job *domain.Job, interval time.Duration, clock func() time.Time) *stopFlag {
	return &stopFlag{
		read: func(ctx context.Context) (bool, error) {
			return jobs.IsStopRequested(ctx, job.ID)
		},
		interval: interval,
		clock:    clock,
	}
}

// StopRequested implements engine.StopChecker.
func (s *stopFlag) StopRequested(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return true, nil
	}
	now := s.clock()
	if s.interval > 0 && !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return false, nil
	}

	stopped, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	s.last = now
	s.stopped = stopped
	return stopped, nil
}
