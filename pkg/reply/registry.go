// Package reply routes each result back to the caller that asked for it.
//
// A Registry maps a caller ID to the single-use Sender for that caller's
// reply. Entries are consumed by Take, so a caller can have at most one
// request dispatched for the lifetime of the registry: a second request
// from the same caller fails with ErrUnknownCaller. The registry is not
// safe for concurrent use; it is filled at startup and then owned by the
// dispatch loop alone.
package reply

import (
	"fmt"
	"sort"

	"github.com/fluxorio/replyloop/pkg/work"
)

// Sender delivers exactly one reply to a caller.
type Sender interface {
	Send(item work.Item) error
}

// Registry maps caller IDs to reply senders.
type Registry struct {
	senders map[int]Sender
	sealed  bool
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[int]Sender)}
}

// Register adds the reply sender for callerID.
func (r *Registry) Register(callerID int, s Sender) error {
	if r.sealed {
		return fmt.Errorf("register caller %d: %w", callerID, ErrRegistrySealed)
	}
	if s == nil {
		return fmt.Errorf("register caller %d: %w", callerID, ErrNilSender)
	}
	if _, ok := r.senders[callerID]; ok {
		return fmt.Errorf("register caller %d: %w", callerID, ErrDuplicateCaller)
	}
	r.senders[callerID] = s
	return nil
}

// Take removes and returns the sender for callerID.
func (r *Registry) Take(callerID int) (Sender, error) {
	s, ok := r.senders[callerID]
	if !ok {
		return nil, fmt.Errorf("take caller %d: %w", callerID, ErrUnknownCaller)
	}
	delete(r.senders, callerID)
	return s, nil
}

// Seal ends the registration phase. Take keeps working.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Len returns the number of callers still awaiting dispatch.
func (r *Registry) Len() int {
	return len(r.senders)
}

// Callers returns the IDs still awaiting dispatch in ascending order.
func (r *Registry) Callers() []int {
	ids := make([]int, 0, len(r.senders))
	for id := range r.senders {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
