// Package worker runs the delivery pipeline: a fixed-size pool of goroutines
// polling the queue, dispatching jobs by kind and reporting the outcome back
// as ack or fail.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/slbhq/accounts/internal/apperr"
	"github.com/slbhq/accounts/internal/queue"
)

const (
	DefaultConcurrency  = 5
	DefaultPollInterval = time.Second
)

// Handler processes one job. A nil return acks the job; an error fails it,
// with apperr.KindPermanent parking it immediately and anything else
// rescheduling it with backoff.
type Handler func(ctx context.Context, job *queue.Job) error

// Events observes job state transitions. Used for metrics; the pool logs
// regardless of the observer.
type Events interface {
	JobActive(job *queue.Job)
	JobCompleted(job *queue.Job)
	JobRetried(job *queue.Job, err error)
	JobParked(job *queue.Job, err error)
}

type noopEvents struct{}

func (noopEvents) JobActive(*queue.Job)         {}
func (noopEvents) JobCompleted(*queue.Job)      {}
func (noopEvents) JobRetried(*queue.Job, error) {}
func (noopEvents) JobParked(*queue.Job, error)  {}

// Pool is a bounded worker pool over a queue.
type Pool struct {
	queue        queue.Queue
	logger       *slog.Logger
	handlers     map[string]Handler
	concurrency  int
	pollInterval time.Duration
	events       Events
}

// Option configures a Pool.
type Option func(*Pool)

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets the idle sleep between empty claims.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithEvents installs a transition observer.
func WithEvents(ev Events) Option {
	return func(p *Pool) {
		if ev != nil {
			p.events = ev
		}
	}
}

// New creates a worker pool. Register handlers before calling Run.
func New(q queue.Queue, logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		queue:        q,
		logger:       logger,
		handlers:     make(map[string]Handler),
		concurrency:  DefaultConcurrency,
		pollInterval: DefaultPollInterval,
		events:       noopEvents{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds a handler to a job kind.
func (p *Pool) Register(kind string, h Handler) {
	p.handlers[kind] = h
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its in-flight job. A job claimed before cancellation is
// processed to completion; its ack or fail uses a background context so the
// bookkeeping survives shutdown.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Claim(ctx)
		if err != nil {
			if err != queue.ErrNoJob {
				logger.Error("failed to claim job", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.process(ctx, logger, job)
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	logger = logger.With("job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts+1)
	p.events.JobActive(job)

	handler, ok := p.handlers[job.Kind]
	if !ok {
		// A kind nobody handles would be reclaimed forever; drop it.
		logger.Warn("no handler for job kind, discarding")
		p.finish(logger, job, nil)
		return
	}

	err := p.run(ctx, handler, job)
	p.finish(logger, job, err)
}

// run executes the handler with panic containment. A panicking handler must
// not take the worker down, and the job stays retryable. The handler context
// expires with the job's lease: past that point the job is redeliverable, so
// a handler stuck on a silent downstream is cut off instead of holding the
// worker (and shutdown) hostage.
func (p *Pool) run(ctx context.Context, handler Handler, job *queue.Job) (err error) {
	if !job.LeaseUntil.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, job.LeaseUntil)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap(apperr.KindInternal, "job handler panicked", fmt.Errorf("%v", r))
		}
	}()
	return handler(ctx, job)
}

func (p *Pool) finish(logger *slog.Logger, job *queue.Job, jobErr error) {
	// Detached from the run context: a job that finished processing gets
	// its outcome recorded even mid-shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if jobErr == nil {
		if err := p.queue.Ack(ctx, job.ID); err != nil {
			logger.Error("failed to ack job", "error", err)
			return
		}
		logger.Info("job completed")
		p.events.JobCompleted(job)
		return
	}

	permanent := !apperr.IsRetryable(jobErr)
	if err := p.queue.Fail(ctx, job.ID, jobErr, permanent); err != nil {
		logger.Error("failed to record job failure", "error", err)
		return
	}

	if permanent || job.Attempts+1 >= job.MaxAttempts {
		logger.Error("job parked", "error", jobErr)
		p.events.JobParked(job, jobErr)
		return
	}
	logger.Warn("job failed, will retry", "error", jobErr)
	p.events.JobRetried(job, jobErr)
}
