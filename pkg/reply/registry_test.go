package reply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fluxorio/replyloop/pkg/work"
)

func TestRegistry_RegisterTake(t *testing.T) {
	r := NewRegistry()
	ch := NewChannel()

	if err := r.Register(1, ch); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	s, err := r.Take(1)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if s != ch {
		t.Error("Take() returned a different sender")
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Take() = %d, want 0", r.Len())
	}
}

func TestRegistry_DuplicateCaller(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(1, NewChannel())

	if err := r.Register(1, NewChannel()); !errors.Is(err, ErrDuplicateCaller) {
		t.Errorf("Register() duplicate error = %v, want ErrDuplicateCaller", err)
	}
}

func TestRegistry_NilSender(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(1, nil); !errors.Is(err, ErrNilSender) {
		t.Errorf("Register(nil) error = %v, want ErrNilSender", err)
	}
}

func TestRegistry_TakeIsSingleUse(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(1, NewChannel())

	if _, err := r.Take(1); err != nil {
		t.Fatalf("first Take() error = %v", err)
	}
	// Consumed and never-registered look the same.
	if _, err := r.Take(1); !errors.Is(err, ErrUnknownCaller) {
		t.Errorf("second Take() error = %v, want ErrUnknownCaller", err)
	}
	if _, err := r.Take(42); !errors.Is(err, ErrUnknownCaller) {
		t.Errorf("Take(unregistered) error = %v, want ErrUnknownCaller", err)
	}
}

func TestRegistry_Seal(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(1, NewChannel())
	r.Seal()

	if !r.Sealed() {
		t.Error("Sealed() = false after Seal()")
	}
	if err := r.Register(2, NewChannel()); !errors.Is(err, ErrRegistrySealed) {
		t.Errorf("Register() after Seal() error = %v, want ErrRegistrySealed", err)
	}
	if _, err := r.Take(1); err != nil {
		t.Errorf("Take() after Seal() error = %v", err)
	}
}

func TestRegistry_Callers(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int{3, 1, 2} {
		_ = r.Register(id, NewChannel())
	}
	_, _ = r.Take(2)

	got := r.Callers()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Callers() = %v, want [1 3]", got)
	}
}

func TestChannel_SendReceive(t *testing.T) {
	ch := NewChannel()
	item := work.Item{CallerID: 4, Payload: 2}

	if err := ch.Send(item); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := ch.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got != item {
		t.Errorf("Receive() = %v, want %v", got, item)
	}
}

func TestChannel_Abandoned(t *testing.T) {
	ch := NewChannel()
	ch.Abandon()

	if err := ch.Send(work.Item{CallerID: 1}); !errors.Is(err, ErrReplyUndeliverable) {
		t.Errorf("Send() after Abandon() error = %v, want ErrReplyUndeliverable", err)
	}
	if _, err := ch.Receive(context.Background()); !errors.Is(err, ErrReplyUndeliverable) {
		t.Errorf("Receive() after Abandon() error = %v, want ErrReplyUndeliverable", err)
	}
}

func TestChannel_ReceiveBlocksUntilReply(t *testing.T) {
	ch := NewChannel()
	item := work.Item{CallerID: 9, Payload: 1}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = ch.Send(item)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if got, err := ch.Receive(ctx); err != nil || got != item {
		t.Errorf("Receive() = (%v, %v), want (%v, nil)", got, err, item)
	}
}

func TestChannel_TryReceive(t *testing.T) {
	ch := NewChannel()
	if _, ok := ch.TryReceive(); ok {
		t.Error("TryReceive() on empty channel ok = true, want false")
	}

	item := work.Item{CallerID: 4, Payload: 2}
	if err := ch.Send(item); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	ch.Abandon()

	if got, ok := ch.TryReceive(); !ok || got != item {
		t.Errorf("TryReceive() after Abandon() = (%v, %v), want (%v, true)", got, ok, item)
	}
}
