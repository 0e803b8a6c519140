//go:build !integration

package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLockIsFIFOPerKey(t *testing.T) {
	l := New()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 7)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	const n = 8
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := l.Lock(ctx, 7)
			if err != nil {
				t.Errorf("Lock %d: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			release()
		}(i)
		// make sure goroutine i is queued before i+1 starts
		waitFor(t, func() bool { return l.pending(7) == i+2 })
		time.Sleep(5 * time.Millisecond)
	}

	unlock()
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("expected arrival order, got %v", order)
		}
	}
	if p := l.pending(7); p != 0 {
		t.Errorf("expected entry to be released, %d refs left", p)
	}
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	l := New()
	unlock, err := l.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	other, err := l.Lock(ctx, 2)
	if err != nil {
		t.Fatalf("lock on a different key must not wait: %v", err)
	}
	other()
}

func TestLockHonoursContext(t *testing.T) {
	l := New()
	unlock, _ := l.Lock(context.Background(), 3)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, 3); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if p := l.pending(3); p != 1 {
		t.Errorf("timed out waiter must be removed, refs=%d", p)
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	l := New()
	unlock, _ := l.Lock(context.Background(), 4)
	unlock()
	unlock()
	again, err := l.Lock(context.Background(), 4)
	if err != nil {
		t.Fatalf("Lock after double unlock: %v", err)
	}
	again()
}
