package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitWaitReturnsOwnResult(t *testing.T) {
	pool, err := New(Config{Workers: 4, QueueSize: 16}, func(ctx context.Context, task *Task) *Result {
		time.Sleep(time.Duration(task.Payload.(int)) * time.Millisecond)
		return &Result{Success: true, Data: task.Payload}
	}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pool.Start()
	defer pool.Stop()

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			res, err := pool.SubmitWait(context.Background(), &Task{ID: fmt.Sprint(i), Payload: 8 - i})
			if err != nil {
				errs <- err
				return
			}
			if res.TaskID != fmt.Sprint(i) || res.Data.(int) != 8-i {
				errs <- fmt.Errorf("task %d got result %+v", i, res)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	var calls int32
	pool, _ := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 3, RetryDelay: time.Millisecond}, func(ctx context.Context, task *Task) *Result {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &Result{Error: errors.New("transient")}
		}
		return &Result{Success: true}
	}, nil)
	pool.Start()
	defer pool.Stop()

	res, err := pool.SubmitWait(context.Background(), &Task{ID: "t"})
	if err != nil {
		t.Fatalf("SubmitWait() error = %v", err)
	}
	if !res.Success || res.Attempts != 3 {
		t.Errorf("result = %+v, want success on attempt 3", res)
	}
	if pool.Stats().Retried != 2 {
		t.Errorf("Retried = %d, want 2", pool.Stats().Retried)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	var calls int32
	errBad := errors.New("empty context")
	pool, _ := New(Config{Workers: 1, QueueSize: 1, MaxRetries: 5, RetryDelay: time.Millisecond}, func(ctx context.Context, task *Task) *Result {
		atomic.AddInt32(&calls, 1)
		return &Result{Error: Permanent(errBad)}
	}, nil)
	pool.Start()
	defer pool.Stop()

	res, _ := pool.SubmitWait(context.Background(), &Task{ID: "t"})
	if res.Success || !errors.Is(res.Error, errBad) {
		t.Errorf("result = %+v", res)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	pool, _ := New(DefaultConfig(), func(ctx context.Context, task *Task) *Result {
		return &Result{Success: true}
	}, nil)
	pool.Start()
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := pool.SubmitWait(context.Background(), &Task{ID: "late"}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("SubmitWait() after Stop = %v, want ErrPoolClosed", err)
	}
	if err := pool.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	pool, _ := New(Config{Workers: 1, QueueSize: 1}, func(ctx context.Context, task *Task) *Result {
		started <- struct{}{}
		<-release
		return &Result{Success: true}
	}, nil)
	pool.Start()
	defer pool.Stop()
	defer close(release)

	go pool.SubmitWait(context.Background(), &Task{ID: "running"})
	<-started
	go pool.SubmitWait(context.Background(), &Task{ID: "queued"})

	deadline := time.Now().Add(2 * time.Second)
	for pool.Stats().Queued == 0 {
		if time.Now().After(deadline) {
			t.Fatal("second task never queued")
		}
		time.Sleep(time.Millisecond)
	}
	if !pool.Saturated() {
		t.Error("Saturated() = false with a full queue")
	}
	if _, err := pool.SubmitWait(context.Background(), &Task{ID: "rejected"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("SubmitWait() = %v, want ErrQueueFull", err)
	}
}

func TestShutdownTimeoutCancelsTasks(t *testing.T) {
	started := make(chan struct{})
	pool, _ := New(Config{Workers: 1, QueueSize: 1, ShutdownTimeout: 20 * time.Millisecond}, func(ctx context.Context, task *Task) *Result {
		close(started)
		<-ctx.Done()
		return &Result{Error: ctx.Err()}
	}, nil)
	pool.Start()

	results := make(chan *Result, 1)
	go func() {
		res, _ := pool.SubmitWait(context.Background(), &Task{ID: "slow"})
		results <- res
	}()
	<-started

	if err := pool.Stop(); err == nil {
		t.Error("Stop() should report the timeout")
	}
	res := <-results
	if res == nil || !errors.Is(res.Error, context.Canceled) {
		t.Errorf("result = %+v, want context.Canceled", res)
	}
}
