// Package executor runs clustering work in the background.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/davidbz/soundgraph/internal/domain"
	"github.com/davidbz/soundgraph/internal/observability"
)

const (
	defaultWorkers     = 4
	defaultParallelism = 8
)

// ErrClosed is reported to joins dispatched after Shutdown.
var ErrClosed = errors.New("executor closed")

// Config sizes the pool.
type Config struct {
	// Workers bounds the number of concurrently running jobs.
	Workers int
	// Parallelism bounds the concurrently running chunks of one fan-out.
	Parallelism int
}

// Pool implements domain.TaskExecutor with goroutines. Jobs are never cancelled; Shutdown
// waits for them to finish.
type Pool struct {
	jobs        *semaphore.Weighted
	parallelism int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a background pool.
func NewPool(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	return &Pool{
		jobs:        semaphore.NewWeighted(int64(workers)),
		parallelism: parallelism,
	}
}

// Dispatch runs task in the background.
func (p *Pool) Dispatch(ctx context.Context, name string, task domain.Task) {
	_ = p.spawn(ctx, name, func(ctx context.Context) error {
		return p.safeRun(ctx, task)
	})
}

// DispatchChunked runs chunks concurrently, then join with the first chunk error. join always
// runs after every chunk has returned.
func (p *Pool) DispatchChunked(ctx context.Context, name string, chunks []domain.Task, join domain.Join) {
	err := p.spawn(ctx, name, func(ctx context.Context) error {
		group := new(errgroup.Group)
		group.SetLimit(p.parallelism)

		for _, chunk := range chunks {
			group.Go(func() error {
				return p.safeRun(ctx, chunk)
			})
		}

		chunkErr := group.Wait()
		return p.safeRun(ctx, func(ctx context.Context) error {
			return join(ctx, chunkErr)
		})
	})
	if errors.Is(err, ErrClosed) {
		_ = p.safeRun(ctx, func(ctx context.Context) error {
			return join(ctx, ErrClosed)
		})
	}
}

// Shutdown stops accepting work and waits for running jobs or ctx expiry.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}

// spawn starts a job detached from the caller's cancellation but keeping its values.
func (p *Pool) spawn(ctx context.Context, name string, job func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	logger := observability.FromContext(ctx)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		logger.Warn("task rejected, executor closed", observability.String("task", name))
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		if err := p.jobs.Acquire(ctx, 1); err != nil {
			logger.Error("failed to acquire worker", observability.String("task", name), observability.Error(err))
			return
		}
		defer p.jobs.Release(1)

		logger.Debug("task started", observability.String("task", name))
		if err := job(ctx); err != nil {
			logger.Warn("task finished with error",
				observability.String("task", name),
				observability.Error(err))
			return
		}
		logger.Debug("task finished", observability.String("task", name))
	}()

	return nil
}

// safeRun converts a panic into an error so one task cannot take the process down.
func (p *Pool) safeRun(ctx context.Context, task domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
