package client

import (
	"context"
	"sync"
)

// prioritySemaphore admits a bounded number of concurrent attach calls.
// Priority waiters (the focused pane) are released before normal ones, so
// the terminal the user is looking at attaches first during a reconnect
// storm.
type prioritySemaphore struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	priority []chan struct{}
	normal   []chan struct{}
}

func newPrioritySemaphore(capacity int) *prioritySemaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &prioritySemaphore{capacity: capacity}
}

func (s *prioritySemaphore) acquire(ctx context.Context, prioritized bool) error {
	s.mu.Lock()
	if s.inUse < s.capacity {
		s.inUse++
		s.mu.Unlock()
		return nil
	}
	wait := make(chan struct{})
	if prioritized {
		s.priority = append(s.priority, wait)
	} else {
		s.normal = append(s.normal, wait)
	}
	s.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		s.abandon(wait)
		return ctx.Err()
	}
}

// abandon removes a canceled waiter, or forwards the slot if the release
// already picked it.
func (s *prioritySemaphore) abandon(wait chan struct{}) {
	s.mu.Lock()
	for i, ch := range s.priority {
		if ch == wait {
			s.priority = append(s.priority[:i], s.priority[i+1:]...)
			s.mu.Unlock()
			return
		}
	}
	for i, ch := range s.normal {
		if ch == wait {
			s.normal = append(s.normal[:i], s.normal[i+1:]...)
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()
	// The slot was already handed to this waiter; pass it on.
	s.release()
}

func (s *prioritySemaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.priority) > 0 {
		wait := s.priority[0]
		s.priority = s.priority[1:]
		close(wait)
		return
	}
	if len(s.normal) > 0 {
		wait := s.normal[0]
		s.normal = s.normal[1:]
		close(wait)
		return
	}
	s.inUse--
}
