package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-process queue backend. Claim scans for the best
// available item; the queue is small (bounded by in-flight submissions), so
// a linear scan beats heap bookkeeping around AvailableAt.
type MemoryStore struct {
	mu                sync.Mutex
	items             []Item
	claimed           map[string]claim
	visibilityTimeout time.Duration
}

type claim struct {
	item      Item
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory queue. Claims expire after
// visibilityTimeout and are returned by ReapExpired.
func NewMemoryStore(visibilityTimeout time.Duration) *MemoryStore {
	if visibilityTimeout <= 0 {
		visibilityTimeout = 35 * time.Minute
	}
	return &MemoryStore{
		claimed:           make(map[string]claim),
		visibilityTimeout: visibilityTimeout,
	}
}

func (s *MemoryStore) Enqueue(ctx context.Context, it Item) error {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	s.mu.Lock()
	s.items = append(s.items, it)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Claim(ctx context.Context) (Item, bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	for i, it := range s.items {
		if it.AvailableAt.After(now) {
			continue
		}
		if best < 0 || betterThan(it, s.items[best]) {
			best = i
		}
	}
	if best < 0 {
		return Item{}, false, nil
	}

	it := s.items[best]
	s.items = append(s.items[:best], s.items[best+1:]...)
	s.claimed[it.JobID] = claim{item: it, expiresAt: now.Add(s.visibilityTimeout)}
	return it, true, nil
}

// betterThan orders items by priority descending, then enqueue time ascending.
func betterThan(a, b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

func (s *MemoryStore) Ack(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[jobID]; !ok {
		return fmt.Errorf("ack: job %q not claimed", jobID)
	}
	delete(s.claimed, jobID)
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, jobID string, availableAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claimed[jobID]
	if !ok {
		return fmt.Errorf("release: job %q not claimed", jobID)
	}
	delete(s.claimed, jobID)
	c.item.Attempt++
	c.item.AvailableAt = availableAt
	s.items = append(s.items, c.item)
	return nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *MemoryStore) ReapExpired(ctx context.Context) (int, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.claimed {
		if now.After(c.expiresAt) {
			delete(s.claimed, id)
			c.item.AvailableAt = now
			s.items = append(s.items, c.item)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Type() string { return "memory" }
