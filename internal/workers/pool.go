// Package workers provides the long-lived bounded worker pool shared by all
// decomposition calls.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultWorkers is the pool size used when a non-positive size is requested
const DefaultWorkers = 4

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task is a unit of work. It should return promptly once ctx is done.
type Task func(ctx context.Context) (interface{}, error)

// Result is the outcome of one task
type Result struct {
	Value    interface{}
	Err      error
	Duration time.Duration
}

// Stats is a point-in-time snapshot of pool activity
type Stats struct {
	Workers   int   `json:"workers" msgpack:"workers"`
	Queued    int   `json:"queued" msgpack:"queued"`
	Running   int64 `json:"running" msgpack:"running"`
	Completed int64 `json:"completed" msgpack:"completed"`
	Failed    int64 `json:"failed" msgpack:"failed"`
}

// Pool runs tasks on a fixed set of goroutines created once at construction
type Pool struct {
	jobs       chan jobItem
	log        zerolog.Logger
	wg         sync.WaitGroup
	closeMu    sync.RWMutex
	submitters sync.WaitGroup // Submit calls past the closed check
	quit       chan struct{}
	quitOnce   sync.Once
	jobsOnce   sync.Once
	logMu      sync.Mutex // orders completion log lines only
	numWorkers int
	closed     bool
	running    atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
}

// jobItem represents a single queued task
type jobItem struct {
	ctx    context.Context
	task   Task
	result chan Result
	label  string
}

// NewPool creates and starts a pool with numWorkers goroutines
func NewPool(numWorkers int, log zerolog.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	p := &Pool{
		jobs:       make(chan jobItem, numWorkers*16),
		quit:       make(chan struct{}),
		numWorkers: numWorkers,
		log:        log.With().Str("component", "worker_pool").Logger(),
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(id)
		}(i)
	}

	p.log.Debug().Int("workers", numWorkers).Msg("Worker pool started")
	return p
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.numWorkers
}

// Submit queues task and returns a channel that receives exactly one Result.
// It blocks while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, label string, task Task) (<-chan Result, error) {
	p.closeMu.RLock()
	if p.closed {
		p.closeMu.RUnlock()
		return nil, ErrPoolClosed
	}
	p.submitters.Add(1)
	p.closeMu.RUnlock()
	defer p.submitters.Done()

	job := jobItem{
		ctx:    ctx,
		task:   task,
		result: make(chan Result, 1),
		label:  label,
	}

	select {
	case p.jobs <- job:
		return job.result, nil
	case <-p.quit:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("submit %s: %w", label, ctx.Err())
	}
}

// Shutdown stops accepting work, lets queued tasks drain and joins every worker.
// Submit calls blocked on a full queue return ErrPoolClosed.
// It returns ctx.Err() if the workers have not finished when ctx is done.
// Calling Shutdown more than once is safe.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeMu.Lock()
	p.closed = true
	p.closeMu.Unlock()
	p.quitOnce.Do(func() { close(p.quit) })

	done := make(chan struct{})
	go func() {
		// jobs is closed only once no Submit can still send on it
		p.submitters.Wait()
		p.jobsOnce.Do(func() { close(p.jobs) })
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Debug().Int64("completed", p.completed.Load()).Msg("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

// Stats returns a snapshot of pool activity
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.numWorkers,
		Queued:    len(p.jobs),
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// worker is the worker goroutine that processes queued tasks
func (p *Pool) worker(id int) {
	for job := range p.jobs {
		res := p.run(job)
		job.result <- res

		p.logMu.Lock()
		evt := p.log.Debug()
		if res.Err != nil {
			evt = p.log.Warn().Err(res.Err)
		}
		evt.Int("worker", id).
			Str("task", job.label).
			Dur("duration", res.Duration).
			Msg("Task finished")
		p.logMu.Unlock()
	}
}

// run executes one task, converting a panic into an error
func (p *Pool) run(job jobItem) (res Result) {
	start := time.Now()
	p.running.Add(1)
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("task %s panicked: %v\n%s", job.label, r, debug.Stack())}
		}
		res.Duration = time.Since(start)
		p.running.Add(-1)
		p.completed.Add(1)
		if res.Err != nil {
			p.failed.Add(1)
		}
	}()

	// Skip work whose caller already gave up
	if err := job.ctx.Err(); err != nil {
		return Result{Err: err}
	}

	value, err := job.task(job.ctx)
	return Result{Value: value, Err: err}
}
