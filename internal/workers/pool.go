// Package workers provides the bounded worker pool that sweeps fan out on.
// It supports job queuing, rate limiting, retries of retryable failures,
// graceful shutdown, and batch submission with guaranteed fan-in.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/anstrom/netsweep/internal/errors"
	"github.com/anstrom/netsweep/internal/logging"
	"github.com/anstrom/netsweep/internal/metrics"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Duration time.Duration
	Retries  int
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// MaxRetries is the maximum number of retries for retryable failures.
	MaxRetries int
	// RetryDelay is the delay between retries.
	RetryDelay time.Duration
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
	// RateLimit is the maximum number of jobs started per second (0 = no limit).
	RateLimit int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            64,
		QueueSize:       256,
		MaxRetries:      0,
		RetryDelay:      100 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// task is a queued job plus where its result goes.
type task struct {
	job  Job
	ctx  context.Context
	done chan<- Result
}

// Pool manages a fixed set of worker goroutines.
type Pool struct {
	config   Config
	tasks    chan task
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	limiter  *rate.Limiter
	metrics  *metrics.PrometheusMetrics
	logger   *logging.Logger
	queued   atomic.Int64
	submitMu sync.RWMutex
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// New creates a new worker pool with the given configuration.
func New(config Config) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		config:  config,
		tasks:   make(chan task, config.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics.GetGlobalMetrics(),
		logger:  logging.Default().WithComponent("workers"),
	}

	if config.RateLimit > 0 {
		pool.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit)
	}
	return pool
}

// WithMetrics swaps the metrics sink. Used by tests.
func (p *Pool) WithMetrics(m *metrics.PrometheusMetrics) *Pool {
	p.metrics = m
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.config.Size
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	p.logger.Info("Starting worker pool",
		"worker_count", p.config.Size,
		"queue_size", p.config.QueueSize,
		"rate_limit", p.config.RateLimit)

	for i := 0; i < p.config.Size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Submit queues a job, blocking until there is room, ctx is done or the
// pool shuts down. The result is delivered on done, which must have room
// for it; the pool never blocks on a result send.
func (p *Pool) Submit(ctx context.Context, job Job, done chan<- Result) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.stopped.Load() {
		return fmt.Errorf("worker pool is shut down")
	}

	select {
	case p.tasks <- task{job: job, ctx: ctx, done: done}:
		p.metrics.SetQueueDepth(int(p.queued.Add(1)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// RunBatch submits every job and waits until each has produced a result.
// Results are returned in submission order. If ctx ends before all jobs are
// queued, the unqueued jobs report ctx.Err().
func (p *Pool) RunBatch(ctx context.Context, jobs []Job) []Result {
	done := make(chan Result, len(jobs))
	index := make(map[string]int, len(jobs))
	results := make([]Result, len(jobs))

	pending := 0
	for i, job := range jobs {
		index[job.ID()] = i
		if err := p.Submit(ctx, job, done); err != nil {
			results[i] = Result{JobID: job.ID(), JobType: job.Type(), Error: err}
			continue
		}
		pending++
	}

	for ; pending > 0; pending-- {
		r := <-done
		results[index[r.JobID]] = r
	}
	return results
}

// Shutdown stops accepting work and waits for in-flight jobs.
func (p *Pool) Shutdown() error {
	var err error
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.logger.Info("Shutting down worker pool")

		p.cancel()
		// Wait out any Submit that is mid-send.
		p.submitMu.Lock()
		p.submitMu.Unlock()

		finished := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
			p.drain()
			p.logger.Info("Worker pool shutdown completed")
		case <-time.After(p.config.ShutdownTimeout):
			err = fmt.Errorf("worker pool shutdown timed out after %s", p.config.ShutdownTimeout)
			p.logger.Warn("Worker pool shutdown timeout")
		}
	})
	return err
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		select {
		case t := <-p.tasks:
			p.metrics.SetQueueDepth(int(p.queued.Add(-1)))
			t.done <- p.execute(id, t)
		case <-p.ctx.Done():
			p.drain()
			return
		}
	}
}

// drain answers every still-queued task so batch waiters are released.
func (p *Pool) drain() {
	for {
		select {
		case t := <-p.tasks:
			p.queued.Add(-1)
			t.done <- Result{JobID: t.job.ID(), JobType: t.job.Type(), Error: context.Canceled}
		default:
			return
		}
	}
}

func (p *Pool) execute(workerID int, t task) Result {
	job := t.job
	ctx, cancel := mergeCancel(t.ctx, p.ctx)
	defer cancel()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return Result{JobID: job.ID(), JobType: job.Type(), Error: err}
		}
	}

	var (
		lastErr error
		retries int
		start   = time.Now()
	)
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		lastErr = job.Execute(ctx)
		if lastErr == nil || !errors.IsRetryable(lastErr) || ctx.Err() != nil {
			break
		}
		if attempt == p.config.MaxRetries {
			break
		}
		retries++
		p.logger.Debug("Job failed, retrying",
			"job_id", job.ID(), "job_type", job.Type(), "attempt", attempt+1, "error", lastErr)

		select {
		case <-time.After(p.config.RetryDelay):
		case <-ctx.Done():
		}
	}

	duration := time.Since(start)
	p.metrics.RecordJob(job.Type(), lastErr, duration)
	if lastErr != nil {
		p.logger.Debug("Job failed",
			"job_id", job.ID(), "job_type", job.Type(), "worker_id", workerID, "retries", retries, "error", lastErr)
	}

	return Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    lastErr,
		Duration: duration,
		Retries:  retries,
	}
}

// mergeCancel returns a context that ends when either parent does.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	id      string
	jobType string
	fn      func(ctx context.Context) error
}

// NewFuncJob creates a job that runs fn.
func NewFuncJob(id, jobType string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{id: id, jobType: jobType, fn: fn}
}

// Execute implements the Job interface.
func (j *FuncJob) Execute(ctx context.Context) error {
	return j.fn(ctx)
}

// ID implements the Job interface.
func (j *FuncJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *FuncJob) Type() string {
	return j.jobType
}
