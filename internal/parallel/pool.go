// Package parallel provides the fixed-size worker pool recovery phases run on.
package parallel

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FocuswithJustin/sqlforensic/internal/logging"
)

// ErrTooManyWorkers is returned when the worker count exceeds the maximum allowed.
var ErrTooManyWorkers = fmt.Errorf("worker count exceeds maximum")

// MaxWorkers is the maximum number of workers allowed in a pool.
const MaxWorkers = math.MaxInt / 2

// DefaultPollInterval is how often Wait checks the outstanding task counter.
const DefaultPollInterval = 5 * time.Millisecond

// Task is one unit of work. Page identifies it in failure logs.
type Task struct {
	Phase string
	Page  uint32
	Run   func() error
}

// Pool runs tasks on a fixed number of workers. A pool of size 1 runs every
// task inline on the submitting goroutine.
type Pool struct {
	workers   int
	taskQueue chan Task
	wg        sync.WaitGroup
	once      sync.Once
	mu        sync.RWMutex // Protects taskQueue from concurrent close during send
	closed    bool         // Protected by mu

	pending  atomic.Int64
	failures atomic.Int64
	onFail   func(Task, any)
}

// Option configures a Pool.
type Option func(*Pool)

// WithFailureHook registers a callback invoked after a task fails or panics.
func WithFailureHook(fn func(Task, any)) Option {
	return func(p *Pool) { p.onFail = fn }
}

// NewPool creates a pool with the specified number of workers.
// Returns an error if the worker count exceeds MaxWorkers.
func NewPool(workers int, opts ...Option) (*Pool, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, workers, MaxWorkers)
	}

	p := &Pool{workers: workers}
	for _, opt := range opts {
		opt(p)
	}
	if workers > 1 {
		p.taskQueue = make(chan Task, workers*2) // Buffer for 2x workers
		p.start()
	}
	return p, nil
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Synchronous reports whether tasks run inline.
func (p *Pool) Synchronous() bool {
	return p.workers == 1
}

func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.run(task)
	}
}

// run executes a task, isolating its panic or error from the pool.
func (p *Pool) run(task Task) {
	defer p.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.fail(task, fmt.Sprintf("panic: %v", r))
		}
	}()
	if err := task.Run(); err != nil {
		p.fail(task, err.Error())
	}
}

func (p *Pool) fail(task Task, reason any) {
	p.failures.Add(1)
	logging.TaskFailed(task.Phase, task.Page, reason)
	if p.onFail != nil {
		p.onFail(task, reason)
	}
}

// Submit queues a task. Returns false if the pool is closed.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.pending.Add(1)
	if p.taskQueue == nil {
		p.run(task)
		return true
	}
	p.taskQueue <- task
	return true
}

// Pending returns the number of submitted tasks that have not finished.
func (p *Pool) Pending() int64 {
	return p.pending.Load()
}

// Failures returns the number of tasks that failed or panicked.
func (p *Pool) Failures() int64 {
	return p.failures.Load()
}

// Wait blocks until every submitted task has finished, checking the
// outstanding counter every interval. The pool stays open.
func (p *Pool) Wait(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for p.pending.Load() > 0 {
		<-ticker.C
	}
}

// Close shuts down the pool after queued tasks drain.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.taskQueue != nil {
			close(p.taskQueue)
		}
		p.mu.Unlock()
	})
	p.wg.Wait()
}
