package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Broker is the persistence side of the queue: claim a pending job and
// settle its outcome. Satisfied by the store.
type Broker interface {
	ClaimNext(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
}

// Handler processes one claimed job. A nil return completes the job;
// an error fails it with the error text as the reason.
type Handler func(ctx context.Context, job *Job) error

// DefaultPollInterval is how long an idle worker waits before asking
// the broker for work again.
const DefaultPollInterval = time.Second

// settleTimeout bounds the broker call that records a job's outcome.
const settleTimeout = 5 * time.Second

// Dispatcher runs a pool of workers that claim jobs from a Broker and
// hand them to a Handler. Claiming is atomic at the broker, so workers
// never process the same job twice.
type Dispatcher struct {
	broker      Broker
	handler     Handler
	workers     int
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the worker count. Defaults to 1.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) { d.workers = n }
}

// WithPollInterval sets the idle poll interval.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.interval = interval }
}

// WithMaxAttempts fails a claimed job without running the handler once
// its attempt count exceeds n. 0 (the default) disables the guard.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher builds a dispatcher over a broker and handler.
func NewDispatcher(broker Broker, handler Handler, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		broker:   broker,
		handler:  handler,
		workers:  1,
		interval: DefaultPollInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the worker pool and blocks until the context is
// cancelled. In-flight handlers finish before Run returns; a job
// whose handler is interrupted mid-flight is failed, not abandoned
// in processing.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting", "workers", d.workers, "poll_interval", d.interval)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()

	d.logger.Info("dispatcher stopped")
	return ctx.Err()
}

// work is one worker's claim loop.
func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := d.broker.ClaimNext(ctx)
		if err != nil {
			d.logger.Error("claim failed", "worker", worker, "error", err)
			if !d.sleep(ctx) {
				return
			}
			continue
		}
		if job == nil {
			if !d.sleep(ctx) {
				return
			}
			continue
		}

		d.dispatch(ctx, worker, job)
	}
}

// dispatch runs the handler for one claimed job and settles the
// outcome with the broker.
func (d *Dispatcher) dispatch(ctx context.Context, worker int, job *Job) {
	d.logger.Info("job claimed",
		"worker", worker,
		"job_id", job.ID,
		"kind", job.Kind,
		"attempts", job.Attempts,
	)

	if d.maxAttempts > 0 && job.Attempts > d.maxAttempts {
		reason := fmt.Sprintf("max attempts exceeded (%d > %d)", job.Attempts, d.maxAttempts)
		d.logger.Warn("job dropped", "job_id", job.ID, "reason", reason)
		if ferr := d.settle(func(ctx context.Context) error {
			return d.broker.Fail(ctx, job.ID, reason)
		}); ferr != nil {
			d.logger.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
		}
		return
	}

	err := d.runHandler(ctx, job)
	if err != nil {
		d.logger.Error("job failed", "worker", worker, "job_id", job.ID, "error", err)
		if ferr := d.settle(func(ctx context.Context) error {
			return d.broker.Fail(ctx, job.ID, err.Error())
		}); ferr != nil {
			d.logger.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
		}
		return
	}

	if cerr := d.settle(func(ctx context.Context) error {
		return d.broker.Complete(ctx, job.ID)
	}); cerr != nil {
		d.logger.Error("failed to record job completion", "job_id", job.ID, "error", cerr)
		return
	}
	d.logger.Info("job completed", "worker", worker, "job_id", job.ID)
}

// settle runs a broker outcome call with a fresh bounded context. The
// run context may already be cancelled by the time a handler finishes;
// the outcome must still reach the broker or the job stays stuck in
// processing, which Requeue cannot recover.
func (d *Dispatcher) settle(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	return fn(ctx)
}

// runHandler invokes the handler, converting a panic into an error so
// one bad job cannot take down the pool.
func (d *Dispatcher) runHandler(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.handler(ctx, job)
}

// sleep waits one poll interval; returns false if the context was
// cancelled first.
func (d *Dispatcher) sleep(ctx context.Context) bool {
	t := time.NewTimer(d.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
