package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of deferred work, typically a lifecycle event published
// after a database commit. Payload is handler-defined.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler consumes one job. Returning an error schedules a retry until the
// attempt budget runs out.
type Handler func(context.Context, Job) error

// QueueConfig sizes the worker pool and the retry policy.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-process dispatcher. Producers must tolerate a full buffer:
// Enqueue fails fast rather than blocking a request goroutine, because
// every published event here is advisory and the committed database row is
// the source of truth.
type Queue struct {
	name    string
	handler Handler
	logger  *zap.Logger

	maxRetries int
	retryDelay time.Duration
	workers    int

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a stopped queue around one handler. Zero config fields
// fall back to conservative defaults.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:       name,
		handler:    handler,
		logger:     logger.With(zap.String("queue", name)),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		workers:    cfg.Workers,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.consume()
	}
	q.started = true
	q.logger.Info("job queue started", zap.Int("workers", q.workers))
}

// Stop cancels the workers and blocks until they drain.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("job queue stopped")
}

// Enqueue hands a job to the pool without blocking. A stopped queue or a
// full buffer is reported to the caller, who decides whether the loss
// matters.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s is not running", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s shut down: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s buffer full, dropping job %s", q.name, job.ID)
	}
}

func (q *Queue) consume() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
			}
		}
	}
}

func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt > q.maxRetries {
		q.logger.Error("job dropped after retry budget",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Int("attempts", job.Attempt),
			zap.Error(cause))
		return
	}
	q.logger.Warn("job failed, scheduling retry",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(cause))

	// Backoff grows linearly with the attempt count. The retry timer joins
	// the pool's WaitGroup so Stop does not return while a redelivery is
	// still pending.
	delay := time.Duration(job.Attempt) * q.retryDelay
	q.wg.Add(1)
	go func(j Job) {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job",
					zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
