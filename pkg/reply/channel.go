package reply

import (
	"context"
	"errors"
	"fmt"

	"github.com/fluxorio/replyloop/pkg/core/concurrency"
	"github.com/fluxorio/replyloop/pkg/work"
)

// Channel is a caller's private reply channel. The dispatch side holds it
// as a Sender; the caller blocks in Receive. It buffers one reply, which is
// all a caller can ever be owed.
type Channel struct {
	mailbox concurrency.Mailbox[work.Item]
}

// NewChannel creates an empty reply channel.
func NewChannel() *Channel {
	return &Channel{mailbox: concurrency.NewBoundedMailbox[work.Item](1)}
}

// Send implements Sender. It never blocks.
func (c *Channel) Send(item work.Item) error {
	err := c.mailbox.Send(item)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, concurrency.ErrMailboxClosed):
		return fmt.Errorf("reply to caller %d: %w", item.CallerID, ErrReplyUndeliverable)
	default:
		return fmt.Errorf("reply to caller %d: %w", item.CallerID, err)
	}
}

// Receive blocks until the reply arrives, the channel is abandoned, or ctx
// is cancelled.
func (c *Channel) Receive(ctx context.Context) (work.Item, error) {
	item, err := c.mailbox.Receive(ctx)
	if errors.Is(err, concurrency.ErrMailboxClosed) {
		return work.Item{}, ErrReplyUndeliverable
	}
	return item, err
}

// TryReceive returns the reply if it has already arrived. It keeps working
// after Abandon, so a reply that landed first is not lost.
func (c *Channel) TryReceive() (work.Item, bool) {
	item, ok, _ := c.mailbox.TryReceive()
	return item, ok
}

// Abandon marks the receiver as gone; later sends fail with
// ErrReplyUndeliverable.
func (c *Channel) Abandon() {
	c.mailbox.Close()
}
