package concurrency

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/fluxorio/replyloop/pkg/core"
	"github.com/fluxorio/replyloop/pkg/future"
)

// job pairs a queued task with the promise its worker settles
type job[T any] struct {
	task    Task[T]
	promise future.Promise[T]
}

// defaultWorkerPool implements WorkerPool with an unbounded FIFO queue
// guarded by a mutex and condition variable
type defaultWorkerPool[T any] struct {
	workers int
	logger  core.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []job[T]
	running  bool
	stopping bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	active    int64
	submitted int64
	completed int64
	failed    int64
}

// WorkerPoolConfig configures a WorkerPool
type WorkerPoolConfig struct {
	Workers int         // Number of worker goroutines
	Logger  core.Logger // Receives task failures; defaults to a no-op logger
}

// DefaultWorkerPoolConfig returns default worker pool configuration
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers: 4,
	}
}

// NewWorkerPool creates a new WorkerPool; call Start before submitting
func NewWorkerPool[T any](ctx context.Context, config WorkerPoolConfig) WorkerPool[T] {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.Logger == nil {
		config.Logger = core.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(ctx)

	wp := &defaultWorkerPool[T]{
		workers: config.Workers,
		logger:  config.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	wp.cond = sync.NewCond(&wp.mu)
	return wp
}

// Start implements WorkerPool interface
func (wp *defaultWorkerPool[T]) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return ErrPoolRunning
	}
	if wp.stopping {
		return ErrPoolNotRunning
	}

	wp.running = true
	wp.wg.Add(wp.workers)
	for i := 0; i < wp.workers; i++ {
		go wp.worker(i)
	}

	return nil
}

// worker pops jobs in FIFO order until the pool stops and the queue is empty
func (wp *defaultWorkerPool[T]) worker(id int) {
	defer wp.wg.Done()

	for {
		wp.mu.Lock()
		for len(wp.queue) == 0 && !wp.stopping {
			wp.cond.Wait()
		}
		if len(wp.queue) == 0 {
			wp.mu.Unlock()
			return
		}
		j := wp.queue[0]
		wp.queue[0] = job[T]{}
		wp.queue = wp.queue[1:]
		wp.mu.Unlock()

		wp.run(id, j)
	}
}

// run executes one job and settles its promise. Promise handlers run here,
// on the worker goroutine.
func (wp *defaultWorkerPool[T]) run(id int, j job[T]) {
	atomic.AddInt64(&wp.active, 1)
	value, err := wp.execute(j.task)
	atomic.AddInt64(&wp.active, -1)

	if err != nil {
		atomic.AddInt64(&wp.failed, 1)
		wp.logger.Errorf("worker %d: task %s failed: %v", id, j.task.Name(), err)
		_ = j.promise.Fail(err)
		return
	}

	atomic.AddInt64(&wp.completed, 1)
	_ = j.promise.Complete(value)
}

func (wp *defaultWorkerPool[T]) execute(task Task[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = &TaskPanicError{Task: task.Name(), Value: r, Stack: debug.Stack()}
		}
	}()
	return task.Execute(wp.ctx)
}

// Stop implements WorkerPool interface
func (wp *defaultWorkerPool[T]) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return nil
	}
	wp.running = false
	wp.stopping = true
	wp.cond.Broadcast()
	wp.mu.Unlock()

	// Wait for workers to drain the queue or timeout
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-ctx.Done():
		wp.cancel()

		wp.mu.Lock()
		abandoned := wp.queue
		wp.queue = nil
		wp.mu.Unlock()

		for _, j := range abandoned {
			atomic.AddInt64(&wp.failed, 1)
			_ = j.promise.Fail(fmt.Errorf("%s: %w", j.task.Name(), ErrTaskAbandoned))
		}
		return fmt.Errorf("stop timeout: %w", ctx.Err())
	}
}

// Submit implements WorkerPool interface
func (wp *defaultWorkerPool[T]) Submit(task Task[T]) (future.Future[T], error) {
	if task == nil {
		return nil, ErrNilTask
	}

	p := future.NewPromise[T]()

	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return nil, ErrPoolNotRunning
	}
	wp.queue = append(wp.queue, job[T]{task: task, promise: p})
	atomic.AddInt64(&wp.submitted, 1)
	wp.cond.Signal()
	wp.mu.Unlock()

	return p.Future(), nil
}

// Workers implements WorkerPool interface
func (wp *defaultWorkerPool[T]) Workers() int {
	return wp.workers
}

// IsRunning implements WorkerPool interface
func (wp *defaultWorkerPool[T]) IsRunning() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.running
}

// Stats implements WorkerPool interface
func (wp *defaultWorkerPool[T]) Stats() WorkerPoolStats {
	wp.mu.Lock()
	queued := len(wp.queue)
	wp.mu.Unlock()

	return WorkerPoolStats{
		Workers:   wp.workers,
		Queued:    queued,
		Active:    atomic.LoadInt64(&wp.active),
		Submitted: atomic.LoadInt64(&wp.submitted),
		Completed: atomic.LoadInt64(&wp.completed),
		Failed:    atomic.LoadInt64(&wp.failed),
	}
}
