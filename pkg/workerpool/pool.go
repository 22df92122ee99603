// Package workerpool runs summary sessions on a fixed number of goroutines.
// Callers block on SubmitWait for their own result, so back-pressure reaches
// the message consumer instead of piling up in memory.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is shutting down")
	ErrQueueFull  = errors.New("task queue is full")
)

// Task is one unit of work. Payload is opaque to the pool.
type Task struct {
	ID      string
	Payload any
	// Context bounds the task; SubmitWait fills it from its own ctx when nil.
	Context context.Context
}

// Result is what a WorkerFunc reports for a task
type Result struct {
	TaskID   string
	Success  bool
	Error    error
	Data     any
	Attempts int
}

// WorkerFunc processes a task. Returning a Result whose Error is wrapped
// with Permanent stops retries.
type WorkerFunc func(ctx context.Context, task *Task) *Result

// Permanent marks an error that must not be retried.
func Permanent(err error) error { return &permanentError{err: err} }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Config struct {
	Workers   int
	QueueSize int
	// MaxRetries is the number of extra attempts after the first failure
	MaxRetries int
	// RetryDelay doubles after each failed attempt up to MaxRetryDelay
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for model-bound work
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       64,
		MaxRetries:      2,
		RetryDelay:      500 * time.Millisecond,
		MaxRetryDelay:   10 * time.Second,
		ShutdownTimeout: time.Minute,
	}
}

type job struct {
	task *Task
	done chan *Result
}

// Pool is a fixed set of workers fed from a bounded queue
type Pool struct {
	config Config
	fn     WorkerFunc
	logger *zap.Logger

	queue chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// abort cancels in-flight tasks when shutdown times out
	abort  context.Context
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	busy      atomic.Int64
}

// New creates a pool; call Start before submitting.
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, errors.New("workerpool: worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}

	abort, cancel := context.WithCancel(context.Background())
	return &Pool{
		config: cfg,
		fn:     fn,
		logger: logger,
		queue:  make(chan job, cfg.QueueSize),
		abort:  abort,
		cancel: cancel,
	}, nil
}

// Start launches the workers
func (p *Pool) Start() {
	p.wg.Add(p.config.Workers)
	for range p.config.Workers {
		go p.run()
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// SubmitWait queues task and blocks until it has a result or ctx is done.
// A full queue fails fast with ErrQueueFull.
func (p *Pool) SubmitWait(ctx context.Context, task *Task) (*Result, error) {
	if task.Context == nil {
		task.Context = ctx
	}
	j := job{task: task, done: make(chan *Result, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.queue <- j:
		p.submitted.Add(1)
	default:
		p.mu.RUnlock()
		return nil, ErrQueueFull
	}
	p.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-j.done:
		return res, nil
	}
}

// Stop lets queued tasks finish. After ShutdownTimeout in-flight tasks are
// cancelled and an error is returned. Stop is idempotent.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	defer p.cancel()
	select {
	case <-drained:
		p.logger.Info("worker pool stopped")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.cancel()
		<-drained
		p.logger.Warn("worker pool shutdown timed out", zap.Duration("timeout", p.config.ShutdownTimeout))
		return fmt.Errorf("workerpool: shutdown exceeded %s", p.config.ShutdownTimeout)
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for j := range p.queue {
		p.busy.Add(1)
		res := p.attempt(j.task)
		p.busy.Add(-1)

		if res.Success {
			p.completed.Add(1)
		} else {
			p.failed.Add(1)
			p.logger.Warn("task failed",
				zap.String("task_id", j.task.ID),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Error))
		}
		j.done <- res
	}
}

// attempt runs the task until it succeeds, fails permanently or runs out of retries.
func (p *Pool) attempt(task *Task) *Result {
	ctx, stop := p.taskContext(task)
	defer stop()

	delay := p.config.RetryDelay
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return &Result{TaskID: task.ID, Error: err, Attempts: n - 1}
		}

		res := p.fn(ctx, task)
		if res == nil {
			res = &Result{Error: errors.New("worker returned no result")}
		}
		res.TaskID = task.ID
		res.Attempts = n

		if res.Success || IsPermanent(res.Error) {
			return res
		}
		if n > p.config.MaxRetries {
			if p.config.MaxRetries > 0 {
				res.Error = fmt.Errorf("gave up after %d attempts: %w", n, res.Error)
			}
			return res
		}

		p.retried.Add(1)
		p.logger.Debug("retrying task", zap.String("task_id", task.ID), zap.Int("attempt", n), zap.Error(res.Error))
		select {
		case <-ctx.Done():
			return &Result{TaskID: task.ID, Error: ctx.Err(), Attempts: n}
		case <-time.After(delay):
		}
		delay = min(delay*2, p.config.MaxRetryDelay)
	}
}

// taskContext joins the task's own context with the pool's abort signal.
func (p *Pool) taskContext(task *Task) (context.Context, context.CancelFunc) {
	parent := task.Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(p.abort, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Stats is a snapshot of pool counters
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Retried   int64
	Busy      int64
	Queued    int
	Capacity  int
	Workers   int
}

func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Retried:   p.retried.Load(),
		Busy:      p.busy.Load(),
		Queued:    len(p.queue),
		Capacity:  p.config.QueueSize,
		Workers:   p.config.Workers,
	}
}

// Saturated reports whether the queue is at least 90% full
func (p *Pool) Saturated() bool {
	return len(p.queue)*10 >= p.config.QueueSize*9
}
