package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxorio/replyloop/pkg/future"
)

func newStartedPool[T any](t *testing.T, workers int) WorkerPool[T] {
	t.Helper()

	pool := NewWorkerPool[T](context.Background(), WorkerPoolConfig{Workers: workers})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})
	return pool
}

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool[int](context.Background(), DefaultWorkerPoolConfig())

	if pool == nil {
		t.Fatal("NewWorkerPool() should not return nil")
	}
	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if NewWorkerPool[int](context.Background(), WorkerPoolConfig{}).Workers() != 1 {
		t.Error("NewWorkerPool() with zero workers should fall back to 1")
	}
}

func TestWorkerPool_StartStop(t *testing.T) {
	pool := NewWorkerPool[int](context.Background(), WorkerPoolConfig{Workers: 2})

	if err := pool.Start(); err != nil {
		t.Errorf("Start() error = %v", err)
	}

	if !pool.IsRunning() {
		t.Error("IsRunning() should return true after Start()")
	}

	if err := pool.Start(); !errors.Is(err, ErrPoolRunning) {
		t.Errorf("Start() when already running error = %v, want ErrPoolRunning", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := pool.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if pool.IsRunning() {
		t.Error("IsRunning() should return false after Stop()")
	}

	if err := pool.Stop(stopCtx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWorkerPool_Submit(t *testing.T) {
	pool := newStartedPool[string](t, 2)

	if _, err := pool.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("Submit(nil) error = %v, want ErrNilTask", err)
	}

	idle := NewWorkerPool[string](context.Background(), WorkerPoolConfig{Workers: 1})
	_, err := idle.Submit(NewNamedTask("test", func(ctx context.Context) (string, error) {
		return "", nil
	}))
	if !errors.Is(err, ErrPoolNotRunning) {
		t.Errorf("Submit() when not running error = %v, want ErrPoolNotRunning", err)
	}

	f, err := pool.Submit(NewNamedTask("test-task", func(ctx context.Context) (string, error) {
		return "done", nil
	}))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := f.Await(ctx)
	if err != nil || got != "done" {
		t.Errorf("Await() = (%v, %v), want (done, nil)", got, err)
	}
}

func TestWorkerPool_SubmitDoesNotBlock(t *testing.T) {
	pool := newStartedPool[int](t, 1)
	release := make(chan struct{})
	defer close(release)

	blocking := TaskFunc[int](func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})

	start := time.Now()
	for i := 0; i < 50; i++ {
		if _, err := pool.Submit(blocking); err != nil {
			t.Fatalf("Submit() #%d error = %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("50 submits to a busy pool took %v", elapsed)
	}
	if got := pool.Stats().Submitted; got != 50 {
		t.Errorf("Stats().Submitted = %d, want 50", got)
	}
}

func TestWorkerPool_SaturationIsFIFO(t *testing.T) {
	const workers, tasks = 2, 20
	pool := newStartedPool[int](t, workers)

	var mu sync.Mutex
	var started []int
	gate := make(chan struct{})

	futures := make([]future.Future[int], 0, tasks)
	for i := 0; i < tasks; i++ {
		n := i
		f, err := pool.Submit(TaskFunc[int](func(ctx context.Context) (int, error) {
			mu.Lock()
			started = append(started, n)
			mu.Unlock()
			<-gate
			return n, nil
		}))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		futures = append(futures, f)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if len(started) != workers {
		t.Errorf("%d tasks running on %d workers", len(started), workers)
	}
	for _, n := range started {
		if n >= workers {
			t.Errorf("task %d started ahead of earlier submissions", n)
		}
	}
	mu.Unlock()
	if q := pool.Stats().Queued; q != tasks-workers {
		t.Errorf("Stats().Queued = %d, want %d", q, tasks-workers)
	}

	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i, f := range futures {
		v, err := f.Await(ctx)
		if err != nil {
			t.Fatalf("Await(%d) error = %v", i, err)
		}
		if v != i {
			t.Errorf("result[%d] = %d, want %d", i, v, i)
		}
	}

	// The first batch starts together; after that each task starts only
	// once an earlier one has finished, so starts follow submission order.
	mu.Lock()
	defer mu.Unlock()
	if len(started) != tasks {
		t.Fatalf("started %d tasks, want %d", len(started), tasks)
	}
	for i := workers; i < tasks; i++ {
		if started[i] < workers {
			t.Errorf("started[%d] = %d, first batch restarted", i, started[i])
		}
	}

	stats := pool.Stats()
	if stats.Completed != tasks || stats.Submitted != tasks {
		t.Errorf("Stats() = %+v, want %d submitted and completed", stats, tasks)
	}
}

func TestWorkerPool_SingleWorkerOrder(t *testing.T) {
	pool := newStartedPool[int](t, 1)

	var mu sync.Mutex
	var order []int
	var last future.Future[int]
	for i := 0; i < 10; i++ {
		n := i
		f, err := pool.Submit(TaskFunc[int](func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return n, nil
		}))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		last = f
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := last.Await(ctx); err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("execution order = %v, want ascending", order)
		}
	}
}

func TestWorkerPool_TaskPanic(t *testing.T) {
	pool := newStartedPool[int](t, 1)

	f, err := pool.Submit(NewNamedTask("explode", func(ctx context.Context) (int, error) {
		panic("boom")
	}))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = f.Await(ctx)
	if !errors.Is(err, ErrTaskPanic) {
		t.Fatalf("Await() error = %v, want ErrTaskPanic", err)
	}
	var panicErr *TaskPanicError
	if !errors.As(err, &panicErr) || panicErr.Task != "explode" || panicErr.Value != "boom" {
		t.Errorf("Await() error = %#v, want TaskPanicError{explode, boom}", err)
	}

	// The worker survives the panic.
	f, _ = pool.Submit(TaskFunc[int](func(ctx context.Context) (int, error) { return 1, nil }))
	if v, err := f.Await(ctx); err != nil || v != 1 {
		t.Errorf("Await() after panic = (%v, %v), want (1, nil)", v, err)
	}
	if got := pool.Stats().Failed; got != 1 {
		t.Errorf("Stats().Failed = %d, want 1", got)
	}
}

func TestWorkerPool_StopDrainsQueue(t *testing.T) {
	pool := NewWorkerPool[int](context.Background(), WorkerPoolConfig{Workers: 1})
	_ = pool.Start()

	var ran int32
	for i := 0; i < 5; i++ {
		_, _ = pool.Submit(TaskFunc[int](func(ctx context.Context) (int, error) {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&ran, 1)
			return 0, nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 5 {
		t.Errorf("%d queued tasks ran before Stop() returned, want 5", got)
	}
}

func TestWorkerPool_StopTimeoutAbandonsQueue(t *testing.T) {
	pool := NewWorkerPool[int](context.Background(), WorkerPoolConfig{Workers: 1})
	_ = pool.Start()

	blocker := TaskFunc[int](func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	first, _ := pool.Submit(blocker)
	queued, _ := pool.Submit(blocker)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err == nil {
		t.Fatal("Stop() should time out while a task blocks")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if _, err := first.Await(waitCtx); !errors.Is(err, context.Canceled) {
		t.Errorf("running task error = %v, want context.Canceled", err)
	}
	if _, err := queued.Await(waitCtx); !errors.Is(err, ErrTaskAbandoned) && !errors.Is(err, context.Canceled) {
		t.Errorf("queued task error = %v, want ErrTaskAbandoned", err)
	}
}
