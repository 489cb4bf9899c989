// Package queue defines the contract for requesting and consuming
// model fits.
//
// Fits are idempotent over the current dataset, so the queue coalesces:
// while a job is waiting to be picked up, further requests merge into
// it instead of queueing duplicates. A request arriving while a fit is
// already running still produces a fresh job, because that fit started
// from an older dataset snapshot.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epiqlabs/epiq/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 4
	defaultBufferSize    = 4
)

// Job is a single fit request.
type Job struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	Requested time.Time `json:"requested"`
	Coalesced int       `json:"coalesced"`
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue requests a fit. The returned job is either freshly queued
	// or the pending job this request merged into; ok is false if the
	// queue is closed or full.
	Enqueue(ctx context.Context, reason string) (job Job, ok bool)

	// Dequeue returns a channel that will receive jobs as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel plus a
// pending-job pointer for coalescing.
type InMemoryQueue struct {
	jobs       chan Job
	capacity   int
	bufferSize int

	mu      sync.RWMutex
	pending *Job
	closed  bool
}

// NewInMemoryQueue creates a new in-memory fit queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.jobs = make(chan Job, q.bufferSize)

	metrics.UpdateFitQueueCapacity(q.capacity)
	metrics.UpdateFitQueueDepth(0)
	metrics.UpdateFitQueueUtilization(0.0)

	return q
}

// Enqueue requests a fit, merging into the pending job when one exists.
func (q *InMemoryQueue) Enqueue(ctx context.Context, reason string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordFitQueueEnqueueError()
		metrics.RecordErrorByComponent("fit_queue", "closed")
		return Job{}, false
	}

	if q.pending != nil {
		q.pending.Coalesced++
		metrics.RecordFitCoalesced()
		return *q.pending, true
	}

	if len(q.jobs) >= q.capacity {
		metrics.RecordFitQueueEnqueueError()
		metrics.RecordErrorByComponent("fit_queue", "capacity_exceeded")
		return Job{}, false
	}

	job := Job{
		ID:        uuid.New().String(),
		Reason:    reason,
		Requested: time.Now().UTC(),
	}

	select {
	case q.jobs <- job:
		q.pending = &job
		metrics.RecordFitQueueEnqueue()
		q.updateDepthMetrics()
		return job, true
	case <-ctx.Done():
		metrics.RecordFitQueueEnqueueError()
		metrics.RecordErrorByComponent("fit_queue", "context_cancelled")
		return Job{}, false
	default:
		metrics.RecordFitQueueEnqueueError()
		metrics.RecordErrorByComponent("fit_queue", "queue_full")
		return Job{}, false
	}
}

// Dequeue returns a channel that will receive jobs as they become
// available. Handing a job to the consumer ends its coalescing window.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	dequeueChan := make(chan Job)
	go func() {
		defer close(dequeueChan)
		for job := range q.jobs {
			q.mu.Lock()
			if q.pending != nil && q.pending.ID == job.ID {
				job.Coalesced = q.pending.Coalesced
				q.pending = nil
			}
			q.mu.Unlock()

			select {
			case dequeueChan <- job:
				metrics.RecordFitQueueDequeue()
				q.updateDepthMetrics()
			case <-ctx.Done():
				return
			}
		}
	}()
	return dequeueChan
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateFitQueueDepth(size)
	metrics.UpdateFitQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.jobs)
	q.closed = true
	q.pending = nil

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateDepthMetrics() {
	size := len(q.jobs)
	metrics.UpdateFitQueueDepth(size)
	metrics.UpdateFitQueueUtilization(float64(size) / float64(q.capacity))
}
