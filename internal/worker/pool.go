package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolStopped is returned by Go once Stop has been called.
var ErrPoolStopped = errors.New("worker pool stopped")

// Task is one unit of work run by the pool.
// ctx is cancelled when the pool is forced to stop.
type Task func(ctx context.Context)

// Pool implements an elastic worker pool.
// Every task gets its own goroutine, so submission never waits on a busy worker.
// An optional ceiling bounds how many tasks run at the same time; the rest wait
// in their goroutine for a slot.
type Pool struct {
	// slots is nil when the pool is unbounded.
	slots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards stopped against concurrent Go/Stop.
	mu      sync.Mutex
	stopped bool

	// wg tracks active tasks to ensure graceful shutdown.
	wg sync.WaitGroup
}

// NewPool creates a pool. maxConcurrent <= 0 means unbounded.
func NewPool(maxConcurrent int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
	}
	if maxConcurrent > 0 {
		p.slots = make(chan struct{}, maxConcurrent)
	}
	slog.Info("Worker pool ready", "maxConcurrent", maxConcurrent)
	return p
}

// Go schedules task and returns immediately.
func (p *Pool) Go(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}

	p.wg.Add(1)
	go p.run(task)
	return nil
}

func (p *Pool) run(task Task) {
	defer p.wg.Done()

	if p.slots != nil {
		select {
		case p.slots <- struct{}{}:
			defer func() { <-p.slots }()
		case <-p.ctx.Done():
			// Still run it so the task can observe cancellation and report.
		}
	}

	task(p.ctx)
}

// Stop initiates a graceful shutdown.
// New tasks are rejected; running tasks are awaited until ctx expires, after
// which their contexts are cancelled and Stop keeps waiting for them to return.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	slog.Info("Stopping worker pool, waiting for tasks to drain...")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Worker pool drain timed out, cancelling running tasks")
		err = ctx.Err()
		p.cancel()
		<-done
	}

	p.cancel()
	slog.Info("Worker pool stopped")
	return err
}
