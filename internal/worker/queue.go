// Package worker provides the background execution queue used for
// fire-and-forget persistence and replication jobs. A single consumer
// goroutine drains the queue in enqueue order, so jobs for the same room are
// applied upstream in the order they committed locally.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// JobFunc is a unit of background work.
type JobFunc func(ctx context.Context) error

const defaultQueueDepth = 256

// Queue executes jobs sequentially on a dedicated goroutine. Job failures are
// logged, never propagated; the queue exists precisely for work whose outcome
// must not block the caller.
type Queue struct {
	jobs   chan JobFunc
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithDepth sets the job buffer size.
func WithDepth(depth int) Option {
	return func(q *Queue) {
		if depth > 0 {
			q.jobs = make(chan JobFunc, depth)
		}
	}
}

// WithLogger sets the logger used to report failed jobs.
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueue starts the consumer goroutine. ctx bounds the execution of every
// job; canceling it fails in-flight jobs but does not stop the consumer, use
// Shutdown for that.
func NewQueue(ctx context.Context, opts ...Option) *Queue {
	q := &Queue{
		jobs:   make(chan JobFunc, defaultQueueDepth),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.wg.Add(1)

	go q.consume(ctx)

	return q
}

// Enqueue schedules a job. When the queue is full or already shut down the
// job is dropped and the drop is logged; background work is best-effort.
func (q *Queue) Enqueue(job JobFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("background job dropped, queue shut down")

		return
	}

	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("background job dropped, queue full")
	}
}

// Shutdown stops accepting jobs and waits for the queued ones to drain.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()

		return
	}

	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) consume(ctx context.Context) {
	defer q.wg.Done()

	for job := range q.jobs {
		err := job(ctx)
		if err != nil {
			q.logger.Warn("background job failed", zap.Error(err))
		}
	}
}
