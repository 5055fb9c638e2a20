package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dontdude/vedit/internal/domain"
	"github.com/dontdude/vedit/internal/worker"
	"github.com/google/uuid"
)

// Job is one kind of long-running work with its own typed input.
// Execute reports through e and must emit at most one terminal event.
// When it fails it should return the error produced by e.Fail.
type Job[In any] interface {
	Execute(ctx context.Context, in In, e *Emitter) error
}

// Runner executes jobs off the caller's goroutine and streams their events
// to a notification channel addressed by a freshly minted job identifier.
type Runner struct {
	pool    *worker.Pool
	pub     domain.Publisher
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

// Option tunes a Runner.
type Option func(*Runner)

// WithTimeout bounds every job's execution. Zero means no deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a runner scheduling on pool and publishing to pub.
func NewRunner(pool *worker.Pool, pub domain.Publisher, opts ...Option) *Runner {
	r := &Runner{
		pool:   pool,
		pub:    pub,
		logger: slog.Default(),
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit schedules job with input in and returns its identifier immediately.
// Every identifier is new, even for identical inputs.
func Submit[In any](r *Runner, name string, job Job[In], in In) (string, error) {
	return r.submit(name, func(ctx context.Context, e *Emitter) error {
		return job.Execute(ctx, in, e)
	})
}

func (r *Runner) submit(name string, exec func(ctx context.Context, e *Emitter) error) (string, error) {
	jobID := r.newID()
	logger := r.logger.With("jobID", jobID, "job", name)

	err := r.pool.Go(func(ctx context.Context) {
		r.run(ctx, logger, jobID, exec)
	})
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}

	logger.Info("Job submitted")
	return jobID, nil
}

// run executes one job and enforces the terminal-event backstop.
func (r *Runner) run(ctx context.Context, logger *slog.Logger, jobID string, exec func(context.Context, *Emitter) error) {
	e := newEmitter(jobID, r.pub, logger)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := r.execute(ctx, logger, e, exec)
	elapsed := time.Since(start)

	var failure *Failure
	switch {
	case errors.As(err, &failure) && e.Terminated():
		logger.Warn("Job failed", "kind", failure.Kind, "error", err, "elapsed", elapsed)
	case err != nil:
		logger.Error("Job execution failed", "error", err, "elapsed", elapsed)
		if !e.Terminated() {
			_ = e.Fail(domain.KindTaskExecutionFailed, "Task execution failed", err)
		}
	case !e.Terminated():
		logger.Error("Job returned without reporting a result", "elapsed", elapsed)
		_ = e.Fail(domain.KindTaskExecutionFailed, "Task execution failed: job returned without a result", nil)
	default:
		logger.Info("Job finished", "elapsed", elapsed)
	}
}

// execute converts a panic inside the job into an error. The stack is logged
// here and kept out of the error, which subscribers get to see.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, e *Emitter, exec func(context.Context, *Emitter) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Job panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return exec(ctx, e)
}

// Shutdown waits for in-flight jobs; see worker.Pool.Stop.
func (r *Runner) Shutdown(ctx context.Context) error {
	return r.pool.Stop(ctx)
}
