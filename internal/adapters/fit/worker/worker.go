// Package worker consumes fit jobs and drives the fit cycle. A single
// worker serializes fits, so the dataset snapshot, sampler run and
// trace publication never overlap.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/epiqlabs/epiq/internal/adapters/fit/queue"
	"github.com/epiqlabs/epiq/pkg/logger"
	"github.com/epiqlabs/epiq/pkg/metrics"
)

// Runner executes one complete fit cycle: snapshot the dataset, build
// the graph, sample, summarize and publish the result.
type Runner interface {
	RunFit(ctx context.Context, job queue.Job) error
}

// Queue defines how the worker receives fit jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes fit jobs one at a time.
type Worker struct {
	queue  Queue
	runner Runner
	name   string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a fit worker with configuration options.
func New(q Queue, runner Runner, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		runner:   runner,
		name:     "fit-worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop until the context is canceled, the worker
// is shut down, or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "fit failed",
					logger.String("job_id", job.ID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for an in-flight fit to finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs a single fit job and records its outcome.
func (w *Worker) process(ctx context.Context, job queue.Job) error {
	metrics.UpdateFitWorkerBusy(true)
	defer metrics.UpdateFitWorkerBusy(false)

	start := time.Now()
	w.logger.Info(ctx, "fit started",
		logger.String("job_id", job.ID),
		logger.String("reason", job.Reason),
		logger.Int("coalesced", job.Coalesced),
	)

	err := w.runner.RunFit(ctx, job)
	elapsed := time.Since(start)
	metrics.RecordFitWorkerLatency(float64(elapsed.Milliseconds()))

	if err != nil {
		metrics.RecordFitWorkerError()
		metrics.RecordErrorByComponent("fit_worker", "fit_error")
		return fmt.Errorf("fit job %s: %w", job.ID, err)
	}

	w.logger.Info(ctx, "fit finished",
		logger.String("job_id", job.ID),
		logger.Duration("elapsed", elapsed),
	)
	return nil
}
