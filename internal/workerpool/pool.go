// Package workerpool runs queued jobs on a fixed number of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolFull   = errors.New("task pool is full")
	ErrPoolClosed = errors.New("task pool is closed")
)

// Job is one unit of work. OnFinish, when set, receives the job's error,
// including a recovered panic.
type Job struct {
	ID       string
	Work     func(ctx context.Context) error
	OnFinish func(err error)
}

// Stats exposes queue depth and throughput.
type Stats struct {
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Pool is a bounded job queue drained by a fixed set of workers.
type Pool struct {
	jobs    chan Job
	workers int
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup

	active    atomic.Int64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a pool holding up to capacity waiting jobs. A zero timeout
// leaves job duration unbounded.
func New(capacity, workers int, timeout time.Duration, logger *slog.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:    make(chan Job, capacity),
		workers: workers,
		timeout: timeout,
		logger:  logger,
	}
}

// Start launches the workers. Jobs run under ctx; cancelling it stops
// workers after their current job.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "capacity", cap(p.jobs))
}

// Enqueue queues j without blocking.
func (p *Pool) Enqueue(j Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || !p.started {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		return nil
	default:
		p.logger.Warn("job queue full, rejecting job", "job_id", j.ID)
		return ErrPoolFull
	}
}

// Stop refuses new jobs and waits for queued ones to drain, or for ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain worker pool: %w", ctx.Err())
	}
}

// Stats returns current queue metrics.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.jobs),
		Capacity:  cap(p.jobs),
		Workers:   p.workers,
		Active:    p.active.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(ctx, j)
		}
	}
}

func (p *Pool) run(ctx context.Context, j Job) {
	start := time.Now()
	p.active.Add(1)
	defer p.active.Add(-1)

	err := p.call(ctx, j)
	if j.OnFinish != nil {
		j.OnFinish(err)
	}

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		p.logger.Warn("job failed", "job_id", j.ID, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return
	}
	p.logger.Debug("job finished", "job_id", j.ID, "duration_ms", time.Since(start).Milliseconds())
}

func (p *Pool) call(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, r)
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return j.Work(ctx)
}
