// Package caller simulates the independent clients of a dispatch loop. Each
// caller sends one work item on the shared inbound queue and blocks on its
// private reply channel.
package caller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fluxorio/replyloop/pkg/reply"
	"github.com/fluxorio/replyloop/pkg/work"
)

var (
	// ErrReplyMismatch means the reply differs from the request.
	ErrReplyMismatch = errors.New("caller: reply does not match request")

	// ErrReplyTooEarly means the reply arrived before its work could have finished.
	ErrReplyTooEarly = errors.New("caller: reply arrived too early")
)

// Inbound is the send side of the shared request queue.
type Inbound interface {
	Put(ctx context.Context, item work.Item) error
}

// Report describes one completed call.
type Report struct {
	Request work.Item
	Reply   work.Item
	Elapsed time.Duration
	Unit    time.Duration
}

// Verify checks that the reply equals the request and took at least the
// request's duration.
func (r Report) Verify() error {
	if r.Reply != r.Request {
		return fmt.Errorf("%w: sent %s, got %s", ErrReplyMismatch, r.Request, r.Reply)
	}
	if want := r.Request.Duration(r.Unit); r.Elapsed < want {
		return fmt.Errorf("%w: %s answered in %v, want at least %v", ErrReplyTooEarly, r.Request, r.Elapsed, want)
	}
	return nil
}

// Overdue reports whether the reply took longer than the request's duration
// plus one unit of slack. An overdue reply still passes Verify; it points at
// contention rather than a wrong answer.
func (r Report) Overdue() bool {
	unit := r.Unit
	if unit <= 0 {
		unit = work.DefaultUnit
	}
	return r.Elapsed > r.Request.Duration(unit)+unit
}

func (r Report) String() string {
	return fmt.Sprintf("caller %d: sent %d, received %d in %v",
		r.Request.CallerID, r.Request.Payload, r.Reply.Payload, r.Elapsed.Round(time.Millisecond))
}

// Caller is one simulated client.
type Caller struct {
	id      int
	inbound Inbound
	replies *reply.Channel
	unit    time.Duration
}

// New creates caller id sending on inbound. unit is the length of one
// payload unit and is only used to verify replies.
func New(id int, inbound Inbound, unit time.Duration) *Caller {
	if unit <= 0 {
		unit = work.DefaultUnit
	}
	return &Caller{
		id:      id,
		inbound: inbound,
		replies: reply.NewChannel(),
		unit:    unit,
	}
}

func (c *Caller) ID() int {
	return c.id
}

// ReplySender returns the sender the dispatch side uses to answer this caller.
func (c *Caller) ReplySender() reply.Sender {
	return c.replies
}

// Register adds the caller's reply sender to r.
func (c *Caller) Register(r *reply.Registry) error {
	return r.Register(c.id, c.replies)
}

// Call sends payload and waits for the reply. If ctx ends first the reply
// channel is abandoned, so a late reply is dropped by the sender.
func (c *Caller) Call(ctx context.Context, payload uint64) (Report, error) {
	req := work.Item{CallerID: c.id, Payload: payload}
	report := Report{Request: req, Unit: c.unit}

	start := time.Now()
	if err := c.inbound.Put(ctx, req); err != nil {
		c.replies.Abandon()
		return report, fmt.Errorf("caller %d: send: %w", c.id, err)
	}

	resp, err := c.replies.Receive(ctx)
	report.Elapsed = time.Since(start)
	if err != nil {
		c.replies.Abandon()
		late, ok := c.replies.TryReceive()
		if !ok {
			return report, fmt.Errorf("caller %d: await reply: %w", c.id, err)
		}
		resp = late
	}
	report.Reply = resp
	return report, nil
}

// Simulate waits a random delay in [0, maxDelay), then calls with a random
// payload in [1, maxPayload).
func (c *Caller) Simulate(ctx context.Context, rng *rand.Rand, maxDelay time.Duration, maxPayload uint64) (Report, error) {
	if maxDelay > 0 {
		timer := time.NewTimer(time.Duration(rng.Int64N(int64(maxDelay))))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.replies.Abandon()
			return Report{Request: work.Item{CallerID: c.id}, Unit: c.unit}, ctx.Err()
		}
	}

	payload := uint64(1)
	if maxPayload > 1 {
		payload += rng.Uint64N(maxPayload - 1)
	}
	return c.Call(ctx, payload)
}
