// Package executor runs blocking calls on a fixed set of worker goroutines so
// callers such as HTTP handlers and the poller never fan out unbounded.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const defaultWorkers = 4

// ErrPoolClosed is returned when submitting to a stopped pool.
var ErrPoolClosed = errors.New("executor pool closed")

type job struct {
	ctx context.Context
	fn  func(context.Context)
}

// Pool is a bounded worker pool.
type Pool struct {
	workers int
	jobs    chan job
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given number of workers (default 4).
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan job, workers*4),
		logger:  logger,
	}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := range p.workers {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Debug("Executor started", "workers", p.workers)
}

// Stop rejects new work, drains queued jobs and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("Executor stopped")
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Executor job panicked", "worker", id, "panic", r)
		}
	}()
	j.fn(j.ctx)
}

// Submit queues fn. It blocks while the queue is full and returns early if
// ctx ends first. Once queued, fn always runs, possibly with a ctx that is
// already done; fn must check ctx.Err() before doing blocking work.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes fn on the pool and waits for its result.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	var zero T
	err := p.Submit(ctx, func(ctx context.Context) {
		if err := ctx.Err(); err != nil {
			done <- result{zero, err}
			return
		}
		v, err := fn(ctx)
		done <- result{v, err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Do is Run for calls that only return an error.
func Do(ctx context.Context, p *Pool, fn func(context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
