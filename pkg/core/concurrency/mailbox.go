package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrMailboxClosed is returned when trying to send to a closed mailbox,
	// or receive from one that is closed and drained
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrMailboxFull is returned by the non-blocking Send when the mailbox is full
	ErrMailboxFull = errors.New("mailbox is full")
)

// Mailbox is a bounded multi-producer/single-consumer queue of T
// Hides chan type and select statements from application code
type Mailbox[T any] interface {
	// Send enqueues msg without blocking
	// Returns ErrMailboxFull if mailbox is full
	// Returns ErrMailboxClosed if mailbox is closed
	Send(msg T) error

	// Put enqueues msg, blocking while the mailbox is full
	// Returns ErrMailboxClosed if the mailbox is (or becomes) closed,
	// or ctx.Err() if ctx is cancelled first
	Put(ctx context.Context, msg T) error

	// Receive returns the next message, blocking until one is available
	// Messages queued before Close are still delivered; once the mailbox is
	// closed and empty, Receive returns ErrMailboxClosed
	Receive(ctx context.Context) (T, error)

	// TryReceive attempts to receive a message without blocking
	// Returns (msg, true, nil) if a message was available, (zero, false, nil) if empty
	TryReceive() (T, bool, error)

	// Close closes the mailbox for senders. Safe to call more than once
	Close()

	// Capacity returns the maximum capacity of the mailbox
	Capacity() int

	// Size returns the current number of queued messages
	Size() int

	// IsClosed returns true if the mailbox is closed
	IsClosed() bool
}
