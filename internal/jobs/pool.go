package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPoolClosed is returned when work is submitted after Shutdown.
var ErrPoolClosed = errors.New("job pool is closed")

// Pool runs job executions on a bounded number of goroutines. Every task
// gets the pool's base context, which Shutdown cancels, so running jobs see
// cancellation at their next node boundary. A panicking task is recovered
// and logged without taking the process down.
type Pool struct {
	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool running at most size tasks at once.
func NewPool(size int, logger zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		slots:  make(chan struct{}, size),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "job_pool").Logger(),
	}
}

// TryGo starts task if a slot is free and reports whether it did.
func (p *Pool) TryGo(name string, task func(ctx context.Context)) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	default:
		return false, nil
	}
	p.start(name, task)
	return true, nil
}

// Go waits for a free slot, or ctx, then starts task.
func (p *Pool) Go(ctx context.Context, name string, task func(ctx context.Context)) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		<-p.slots
		return ErrPoolClosed
	}
	p.start(name, task)
	return nil
}

// start must be called with mu held and a slot taken.
func (p *Pool) start(name string, task func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Str("task", name).Interface("panic", r).Msg("task panicked")
			}
		}()
		task(p.ctx)
	}()
}

// Free returns the number of idle slots.
func (p *Pool) Free() int {
	return cap(p.slots) - len(p.slots)
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return cap(p.slots)
}

// Shutdown stops accepting work, cancels running tasks and waits for them
// to return or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("job pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job pool shutdown: %w", ctx.Err())
	}
}
