package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		refreshEvery(ctx, time.Millisecond, func(context.Context) {
			if calls.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh loop did not stop after cancel")
	}
	if n := calls.Load(); n < 3 {
		t.Fatalf("refresh called %d times, want at least 3", n)
	}
}
