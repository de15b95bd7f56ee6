package concurrency

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// boundedMailbox implements Mailbox using a buffered channel internally.
// The data channel is never closed: closing is signalled through done, so a
// producer blocked in Put can never panic on a closed channel.
//
// producers counts Send and Put calls in flight. A send that races Close can
// still land in ch, so Receive reports closure only once no producer is left
// and ch is empty. Every accepted message is therefore delivered.
type boundedMailbox[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
	capacity  int
	producers atomic.Int64
}

// NewBoundedMailbox creates a new bounded mailbox
// Capacity below 1 falls back to 100
func NewBoundedMailbox[T any](capacity int) Mailbox[T] {
	if capacity < 1 {
		capacity = 100
	}

	return &boundedMailbox[T]{
		ch:       make(chan T, capacity),
		done:     make(chan struct{}),
		capacity: capacity,
	}
}

// Send implements Mailbox interface
func (mb *boundedMailbox[T]) Send(msg T) error {
	mb.producers.Add(1)
	defer mb.producers.Add(-1)
	if mb.IsClosed() {
		return ErrMailboxClosed
	}

	select {
	case mb.ch <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Put implements Mailbox interface
func (mb *boundedMailbox[T]) Put(ctx context.Context, msg T) error {
	mb.producers.Add(1)
	defer mb.producers.Add(-1)
	if mb.IsClosed() {
		return ErrMailboxClosed
	}

	select {
	case mb.ch <- msg:
		return nil
	case <-mb.done:
		return ErrMailboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Mailbox interface
func (mb *boundedMailbox[T]) Receive(ctx context.Context) (T, error) {
	select {
	case msg := <-mb.ch:
		return msg, nil
	case <-mb.done:
		return mb.drain(ctx)
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// drain hands out whatever is still queued after Close, waiting out producers
// that were already past their closed check when Close ran.
func (mb *boundedMailbox[T]) drain(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case msg := <-mb.ch:
			return msg, nil
		default:
		}

		if mb.producers.Load() == 0 {
			// A producer may have sent and left between the two checks.
			select {
			case msg := <-mb.ch:
				return msg, nil
			default:
				return zero, ErrMailboxClosed
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}
		runtime.Gosched()
	}
}

// TryReceive implements Mailbox interface
func (mb *boundedMailbox[T]) TryReceive() (T, bool, error) {
	select {
	case msg := <-mb.ch:
		return msg, true, nil
	default:
	}

	var zero T
	if mb.IsClosed() && mb.producers.Load() == 0 {
		select {
		case msg := <-mb.ch:
			return msg, true, nil
		default:
			return zero, false, ErrMailboxClosed
		}
	}
	return zero, false, nil
}

// Close implements Mailbox interface
func (mb *boundedMailbox[T]) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
	})
}

// Capacity implements Mailbox interface
func (mb *boundedMailbox[T]) Capacity() int {
	return mb.capacity
}

// Size implements Mailbox interface
func (mb *boundedMailbox[T]) Size() int {
	return len(mb.ch)
}

// IsClosed implements Mailbox interface
func (mb *boundedMailbox[T]) IsClosed() bool {
	select {
	case <-mb.done:
		return true
	default:
		return false
	}
}
