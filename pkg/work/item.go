// Package work defines the unit of work that flows from callers through the
// dispatch loop and back.
package work

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DefaultUnit is the wall-clock length of one payload unit.
const DefaultUnit = time.Second

// Item is a tagged request. It is a plain value: callers, the dispatch loop
// and the worker pool each hold their own copy, and two items are equal when
// both fields are equal.
type Item struct {
	CallerID int    `json:"caller_id" yaml:"caller_id"`
	Payload  uint64 `json:"payload" yaml:"payload"`
}

// Duration returns how long the compute task blocks for this item.
// Payloads too large to represent saturate at the longest time.Duration.
func (i Item) Duration(unit time.Duration) time.Duration {
	if unit <= 0 {
		unit = DefaultUnit
	}
	if i.Payload > uint64(math.MaxInt64/int64(unit)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(i.Payload) * unit
}

func (i Item) String() string {
	return fmt.Sprintf("item{caller=%d payload=%d}", i.CallerID, i.Payload)
}

// Compute is the stand-in for blocking user work: it holds the calling
// goroutine for the item's duration and returns the item unchanged.
// It only returns early when ctx is cancelled, which happens when the
// worker pool is forced down.
func Compute(ctx context.Context, item Item, unit time.Duration) (Item, error) {
	d := item.Duration(unit)
	if d == 0 {
		return item, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return item, nil
	case <-ctx.Done():
		return Item{}, fmt.Errorf("compute %s: %w", item, ctx.Err())
	}
}
