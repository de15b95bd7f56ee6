package concurrency

import (
	"context"
)

// Task represents a unit of work that produces a T
// This abstraction hides goroutine creation and channel operations
type Task[T any] interface {
	// Execute performs the task work
	// ctx is cancelled only when the owning pool is forced to stop
	Execute(ctx context.Context) (T, error)

	// Name returns a human-readable name for the task (for logging/debugging)
	Name() string
}

// TaskFunc is a function type that implements Task
// Allows functions to be used as tasks without creating a struct
type TaskFunc[T any] func(ctx context.Context) (T, error)

// Execute implements Task interface for TaskFunc
func (f TaskFunc[T]) Execute(ctx context.Context) (T, error) {
	return f(ctx)
}

// Name returns a default name for TaskFunc
func (f TaskFunc[T]) Name() string {
	return "TaskFunc"
}

// NamedTask wraps a TaskFunc with a custom name
type NamedTask[T any] struct {
	name string
	task TaskFunc[T]
}

// NewNamedTask creates a new NamedTask
func NewNamedTask[T any](name string, task TaskFunc[T]) *NamedTask[T] {
	return &NamedTask[T]{
		name: name,
		task: task,
	}
}

// Execute implements Task interface
func (nt *NamedTask[T]) Execute(ctx context.Context) (T, error) {
	return nt.task(ctx)
}

// Name returns the task name
func (nt *NamedTask[T]) Name() string {
	return nt.name
}
