// Package future provides a typed, write-once asynchronous result.
//
// A Promise is the writable side held by whoever produces the value; the
// Future is the read side handed to consumers. Handlers registered with
// OnSuccess, OnFailure or OnComplete run exactly once, on the goroutine that
// completes the promise, or immediately on the registering goroutine when the
// result is already known.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyCompleted is returned by Promise.Complete and Promise.Fail when
// the promise already holds a result.
var ErrAlreadyCompleted = errors.New("future: already completed")

// Result holds the outcome of a future.
type Result[T any] struct {
	Value T
	Err   error
}

// Future represents an asynchronous computation of a T
type Future[T any] interface {
	// Await blocks until the future completes or ctx is cancelled
	Await(ctx context.Context) (T, error)

	// OnSuccess registers a handler called with the value on success
	OnSuccess(handler func(T)) Future[T]

	// OnFailure registers a handler called with the error on failure
	OnFailure(handler func(error)) Future[T]

	// OnComplete registers a handler called with the value or the error
	OnComplete(handler func(T, error)) Future[T]

	// Done is closed once the future has a result
	Done() <-chan struct{}

	// IsCompleted reports whether the future has a result
	IsCompleted() bool
}

// Promise is the writable side of a Future
type Promise[T any] interface {
	Future[T]

	// Complete stores value as the result
	Complete(value T) error

	// Fail stores err as the result
	Fail(err error) error

	// Future returns the read-only view
	Future() Future[T]
}

type completeHandler[T any] func(T, error)

type promise[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	result   Result[T]
	handlers []completeHandler[T]
}

// NewPromise creates an uncompleted promise
func NewPromise[T any]() Promise[T] {
	return &promise[T]{
		done: make(chan struct{}),
	}
}

// Succeeded returns a future already completed with value
func Succeeded[T any](value T) Future[T] {
	p := NewPromise[T]()
	_ = p.Complete(value)
	return p.Future()
}

// Failed returns a future already failed with err
func Failed[T any](err error) Future[T] {
	p := NewPromise[T]()
	_ = p.Fail(err)
	return p.Future()
}

func (p *promise[T]) Complete(value T) error {
	return p.settle(Result[T]{Value: value})
}

func (p *promise[T]) Fail(err error) error {
	if err == nil {
		err = errors.New("future: failed with nil error")
	}
	return p.settle(Result[T]{Err: err})
}

func (p *promise[T]) settle(r Result[T]) error {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return ErrAlreadyCompleted
	default:
	}
	p.result = r
	handlers := p.handlers
	p.handlers = nil
	close(p.done)
	p.mu.Unlock()

	// Handlers run outside the lock so they may register further handlers.
	for _, h := range handlers {
		h(r.Value, r.Err)
	}
	return nil
}

func (p *promise[T]) Future() Future[T] {
	return p
}

func (p *promise[T]) Done() <-chan struct{} {
	return p.done
}

func (p *promise[T]) IsCompleted() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.result.Value, p.result.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *promise[T]) OnComplete(handler func(T, error)) Future[T] {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		handler(p.result.Value, p.result.Err)
	default:
		p.handlers = append(p.handlers, handler)
		p.mu.Unlock()
	}
	return p
}

func (p *promise[T]) OnSuccess(handler func(T)) Future[T] {
	return p.OnComplete(func(v T, err error) {
		if err == nil {
			handler(v)
		}
	})
}

func (p *promise[T]) OnFailure(handler func(error)) Future[T] {
	return p.OnComplete(func(_ T, err error) {
		if err != nil {
			handler(err)
		}
	})
}
