// Package dispatch implements the loop that reads work items from the
// inbound queue, offloads them to a worker pool and routes each result back
// to the caller that submitted it.
//
// The loop runs on one reactor goroutine, which is the only goroutine that
// reads the inbound mailbox or touches the reply registry. Completion
// callbacks run on worker goroutines and perform exactly one send each.
package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/replyloop/pkg/core"
	"github.com/fluxorio/replyloop/pkg/core/concurrency"
	prommetrics "github.com/fluxorio/replyloop/pkg/observability/prometheus"
	"github.com/fluxorio/replyloop/pkg/observability/tracing"
	"github.com/fluxorio/replyloop/pkg/reactor"
	"github.com/fluxorio/replyloop/pkg/reply"
	"github.com/fluxorio/replyloop/pkg/work"
)

var (
	ErrNilInbound  = errors.New("dispatch: inbound mailbox cannot be nil")
	ErrNilRegistry = errors.New("dispatch: reply registry cannot be nil")
	ErrNilPool     = errors.New("dispatch: worker pool cannot be nil")
)

// State is the loop's position in its per-item cycle.
type State int32

const (
	StateIdle State = iota
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// DispatchHook observes every item handed to the pool, in dispatch order.
// It runs on the loop goroutine and must not block.
type DispatchHook func(item work.Item)

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(logger core.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records loop activity on m.
func WithMetrics(m *prommetrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// WithTracer sets the tracer for dispatch and compute spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Loop) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// WithPayloadUnit sets how long one payload unit of work takes.
func WithPayloadUnit(unit time.Duration) Option {
	return func(l *Loop) {
		if unit > 0 {
			l.unit = unit
		}
	}
}

// WithDispatchHook registers a hook called after each successful submit.
func WithDispatchHook(hook DispatchHook) Option {
	return func(l *Loop) {
		l.onDispatch = hook
	}
}

// Loop is the dispatch loop.
type Loop struct {
	inbound  concurrency.Mailbox[work.Item]
	registry *reply.Registry
	pool     concurrency.WorkerPool[work.Item]

	logger     core.Logger
	metrics    *prommetrics.Metrics
	tracer     trace.Tracer
	unit       time.Duration
	onDispatch DispatchHook

	reactor *reactor.Reactor[work.Item]
	state   int32
	pending sync.WaitGroup
}

// New creates a loop over inbound, routing replies through registry and
// running work on pool. The pool must be started by the caller.
func New(inbound concurrency.Mailbox[work.Item], registry *reply.Registry, pool concurrency.WorkerPool[work.Item], opts ...Option) (*Loop, error) {
	if inbound == nil {
		return nil, ErrNilInbound
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if pool == nil {
		return nil, ErrNilPool
	}

	l := &Loop{
		inbound:  inbound,
		registry: registry,
		pool:     pool,
		logger:   core.NewNopLogger(),
		tracer:   otel.Tracer(tracing.TracerName),
		unit:     work.DefaultUnit,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reactor = reactor.New[work.Item]("dispatch", inbound, l.handle, l.logger)
	return l, nil
}

// Run seals the registry and dispatches inbound items until the inbound
// mailbox is closed and drained (returns nil) or ctx is cancelled.
// Replies still in flight when Run returns are awaited with Wait.
func (l *Loop) Run(ctx context.Context) error {
	l.registry.Seal()
	l.metrics.SetRegisteredCallers(l.registry.Len())
	l.logger.Infof("dispatch: loop started with %d callers and %d workers", l.registry.Len(), l.pool.Workers())

	err := l.reactor.Run(ctx)
	if err != nil {
		l.logger.Warnf("dispatch: loop stopped: %v", err)
		return err
	}
	l.logger.Infof("dispatch: inbound closed after %d items", l.reactor.Handled())
	return nil
}

// Wait blocks until Run has returned and every dispatched item has been
// settled, either by a delivered reply or a logged drop. It may be called
// before or while Run is running; it returns ctx.Err() if ctx ends first.
func (l *Loop) Wait(ctx context.Context) error {
	// No pending.Add can happen once the reactor is done.
	select {
	case <-l.reactor.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		l.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current loop state.
func (l *Loop) State() State {
	return State(atomic.LoadInt32(&l.state))
}

// Handled returns the number of inbound items read so far.
func (l *Loop) Handled() int64 {
	return l.reactor.Handled()
}

func (l *Loop) handle(ctx context.Context, item work.Item) {
	atomic.StoreInt32(&l.state, int32(StateDispatching))
	defer atomic.StoreInt32(&l.state, int32(StateIdle))

	l.metrics.RecordReceived()
	ctx, requestID := core.WithNewRequestID(ctx)
	ctx, span := l.tracer.Start(ctx, "dispatch.item",
		trace.WithAttributes(
			attribute.Int("replyloop.caller_id", item.CallerID),
			attribute.Int64("replyloop.payload", int64(item.Payload)),
			attribute.String("replyloop.request_id", requestID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	sender, err := l.registry.Take(item.CallerID)
	if err != nil {
		l.logger.Errorf("dispatch: dropping %s (request %s): %v", item, requestID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.RecordDropped(prommetrics.ReasonUnknownCaller)
		return
	}

	started := time.Now()
	l.pending.Add(1)
	f, err := l.pool.Submit(l.computeTask(item, requestID, span.SpanContext()))
	if err != nil {
		l.pending.Done()
		l.logger.Errorf("dispatch: pool rejected %s (request %s): %v", item, requestID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.RecordDropped(prommetrics.ReasonPoolRejected)
		return
	}
	f.OnComplete(func(result work.Item, err error) {
		defer l.pending.Done()
		l.settle(item, requestID, sender, result, err, time.Since(started))
	})

	l.metrics.RecordDispatched(l.pool.Stats().Queued, l.registry.Len())
	l.logger.Debugf("dispatch: submitted %s (request %s)", item, requestID)
	span.SetStatus(codes.Ok, "")
	if l.onDispatch != nil {
		l.onDispatch(item)
	}
}

func (l *Loop) computeTask(item work.Item, requestID string, parent trace.SpanContext) concurrency.Task[work.Item] {
	return concurrency.NewNamedTask("compute-"+strconv.Itoa(item.CallerID), func(ctx context.Context) (work.Item, error) {
		ctx = core.WithRequestID(trace.ContextWithSpanContext(ctx, parent), requestID)
		ctx, span := l.tracer.Start(ctx, "work.compute",
			trace.WithAttributes(
				attribute.Int("replyloop.caller_id", item.CallerID),
				attribute.Int64("replyloop.payload", int64(item.Payload)),
			),
		)
		defer span.End()

		out, err := work.Compute(ctx, item, l.unit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	})
}

// settle runs once per dispatched item, on the goroutine that completed it.
// It never touches the registry or the inbound mailbox.
func (l *Loop) settle(item work.Item, requestID string, sender reply.Sender, result work.Item, err error, elapsed time.Duration) {
	if err != nil {
		l.logger.Errorf("dispatch: work for %s (request %s) failed, reply dropped: %v", item, requestID, err)
		l.metrics.RecordDropped(prommetrics.ReasonTaskFailed)
		l.metrics.RecordSettled(elapsed, false)
		return
	}
	if err := sender.Send(result); err != nil {
		l.logger.Debugf("dispatch: reply for %s (request %s) dropped: %v", item, requestID, err)
		l.metrics.RecordDropped(prommetrics.ReasonUndeliverable)
		l.metrics.RecordSettled(elapsed, false)
		return
	}
	l.metrics.RecordSettled(elapsed, true)
}
