package client

import (
	"context"
	"testing"
	"time"
)

func mustAcquire(t *testing.T, sem *prioritySemaphore, prioritized bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sem.acquire(ctx, prioritized); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}

func TestSemaphoreCapacity(t *testing.T) {
	sem := newPrioritySemaphore(2)
	mustAcquire(t, sem, false)
	mustAcquire(t, sem, false)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := sem.acquire(ctx, false); err != context.DeadlineExceeded {
		t.Fatalf("third acquire = %v, want deadline exceeded", err)
	}

	sem.release()
	mustAcquire(t, sem, false)
}

func TestSemaphorePriorityReleasedFirst(t *testing.T) {
	sem := newPrioritySemaphore(1)
	mustAcquire(t, sem, false)

	order := make(chan string, 2)
	blocked := func(label string, prioritized bool) chan struct{} {
		started := make(chan struct{})
		go func() {
			close(started)
			if err := sem.acquire(context.Background(), prioritized); err != nil {
				return
			}
			order <- label
		}()
		return started
	}

	<-blocked("normal", false)
	time.Sleep(20 * time.Millisecond) // normal waiter is queued first
	<-blocked("focused", true)
	time.Sleep(20 * time.Millisecond)

	sem.release()
	if got := <-order; got != "focused" {
		t.Fatalf("first admitted = %q, want focused", got)
	}
	sem.release()
	if got := <-order; got != "normal" {
		t.Fatalf("second admitted = %q, want normal", got)
	}
}

func TestSemaphoreCanceledWaiterDoesNotLeakSlot(t *testing.T) {
	sem := newPrioritySemaphore(1)
	mustAcquire(t, sem, false)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sem.acquire(ctx, false) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("canceled acquire = %v", err)
	}

	// The held slot plus the abandoned waiter must still leave exactly
	// one slot available after release.
	sem.release()
	mustAcquire(t, sem, false)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if err := sem.acquire(ctx2, false); err != context.DeadlineExceeded {
		t.Fatalf("over-capacity acquire = %v, want deadline exceeded", err)
	}
}
