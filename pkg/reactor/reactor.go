// Package reactor runs a single-goroutine event loop over a message source.
package reactor

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"

	"github.com/fluxorio/replyloop/pkg/core"
	"github.com/fluxorio/replyloop/pkg/core/concurrency"
)

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// Source is the receive side of an inbound queue.
type Source[T any] interface {
	Receive(ctx context.Context) (T, error)
}

// Handler processes one message on the reactor goroutine.
type Handler[T any] func(ctx context.Context, msg T)

// Reactor feeds every message from its source to one handler, in order, on
// a single goroutine. A panicking handler is logged and the loop moves on to
// the next message.
type Reactor[T any] struct {
	name    string
	source  Source[T]
	handler Handler[T]
	logger  core.Logger

	state   int32
	done    chan struct{}
	handled int64
	panics  int64
}

func New[T any](name string, source Source[T], handler Handler[T], logger core.Logger) *Reactor[T] {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Reactor[T]{
		name:    name,
		source:  source,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

func (r *Reactor[T]) Name() string {
	return r.name
}

// Run blocks until the source is closed (returns nil) or ctx is cancelled
// (returns ctx.Err()). A reactor runs at most once.
func (r *Reactor[T]) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&r.state, stateNew, stateRunning) {
		if atomic.LoadInt32(&r.state) == stateRunning {
			return ErrAlreadyRunning
		}
		return ErrStopped
	}
	defer func() {
		atomic.StoreInt32(&r.state, stateStopped)
		close(r.done)
	}()

	for {
		msg, err := r.source.Receive(ctx)
		if err != nil {
			if errors.Is(err, concurrency.ErrMailboxClosed) {
				r.logger.Debugf("reactor %s: source closed after %d messages", r.name, r.Handled())
				return nil
			}
			return err
		}
		r.safeExecute(ctx, msg)
	}
}

// Done is closed when Run returns.
func (r *Reactor[T]) Done() <-chan struct{} {
	return r.done
}

// Handled returns the number of messages passed to the handler.
func (r *Reactor[T]) Handled() int64 {
	return atomic.LoadInt64(&r.handled)
}

// Panics returns the number of handler panics recovered.
func (r *Reactor[T]) Panics() int64 {
	return atomic.LoadInt64(&r.panics)
}

func (r *Reactor[T]) safeExecute(ctx context.Context, msg T) {
	atomic.AddInt64(&r.handled, 1)
	defer func() {
		if p := recover(); p != nil {
			atomic.AddInt64(&r.panics, 1)
			r.logger.Errorf("reactor %s: handler panicked: %v\n%s", r.name, p, debug.Stack())
		}
	}()
	r.handler(ctx, msg)
}
