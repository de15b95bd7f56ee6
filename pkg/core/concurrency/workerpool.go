package concurrency

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxorio/replyloop/pkg/future"
)

var (
	// ErrPoolNotRunning is returned by Submit before Start or after Stop
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrPoolRunning is returned by Start on a pool that is already running
	ErrPoolRunning = errors.New("worker pool is already running")

	// ErrNilTask is returned by Submit when given a nil task
	ErrNilTask = errors.New("task cannot be nil")

	// ErrTaskPanic marks a task that panicked instead of returning
	ErrTaskPanic = errors.New("task panicked")

	// ErrTaskAbandoned fails the futures of tasks still queued when a
	// forced Stop gives up on them
	ErrTaskAbandoned = errors.New("task abandoned by stopped worker pool")
)

// TaskPanicError carries the recovered value of a panicking task.
// It matches ErrTaskPanic with errors.Is.
type TaskPanicError struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value)
}

func (e *TaskPanicError) Unwrap() error {
	return ErrTaskPanic
}

// WorkerPoolStats is a point-in-time snapshot of pool activity
type WorkerPoolStats struct {
	Workers   int   // Number of worker goroutines
	Queued    int   // Tasks waiting for a free worker
	Active    int64 // Tasks currently executing
	Submitted int64 // Total accepted tasks
	Completed int64 // Total tasks that returned a value
	Failed    int64 // Total tasks that returned an error or panicked
}

// WorkerPool runs blocking tasks on a fixed set of worker goroutines
// Hides go func() calls and goroutine lifecycle from application code
type WorkerPool[T any] interface {
	// Start starts the worker goroutines
	Start() error

	// Stop stops accepting tasks and waits for queued and in-flight tasks
	// to finish. If ctx expires first, task contexts are cancelled, tasks
	// still queued fail with ErrTaskAbandoned and Stop returns an error
	Stop(ctx context.Context) error

	// Submit queues a task and returns a future for its result
	// Never blocks: when every worker is busy the task waits in FIFO order
	Submit(task Task[T]) (future.Future[T], error)

	// Workers returns the number of worker goroutines
	Workers() int

	// IsRunning returns true if the worker pool is running
	IsRunning() bool

	// Stats returns current pool statistics
	Stats() WorkerPoolStats
}
