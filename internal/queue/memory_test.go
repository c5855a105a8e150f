package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryClaimPriorityOrder(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	base := time.Now()
	s.Enqueue(ctx, Item{JobID: "low", Priority: 10, EnqueuedAt: base})
	s.Enqueue(ctx, Item{JobID: "high", Priority: 20, EnqueuedAt: base.Add(time.Second)})

	it, ok, err := s.Claim(ctx)
	if err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}
	if it.JobID != "high" {
		t.Errorf("claimed %q, want high (higher priority wins despite later enqueue)", it.JobID)
	}
}

func TestMemoryClaimFIFOWithinPriority(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	base := time.Now()
	s.Enqueue(ctx, Item{JobID: "second", Priority: 10, EnqueuedAt: base.Add(time.Second)})
	s.Enqueue(ctx, Item{JobID: "first", Priority: 10, EnqueuedAt: base})

	it, _, _ := s.Claim(ctx)
	if it.JobID != "first" {
		t.Errorf("claimed %q, want first (FIFO within equal priority)", it.JobID)
	}
}

func TestMemoryClaimEmpty(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	_, ok, err := s.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if ok {
		t.Error("Claim on empty queue returned ok")
	}
}

func TestMemoryAvailableAtDelaysClaim(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	s.Enqueue(ctx, Item{JobID: "delayed", Priority: 10, AvailableAt: time.Now().Add(50 * time.Millisecond)})

	if _, ok, _ := s.Claim(ctx); ok {
		t.Fatal("claimed item before its AvailableAt")
	}

	time.Sleep(80 * time.Millisecond)
	it, ok, _ := s.Claim(ctx)
	if !ok || it.JobID != "delayed" {
		t.Errorf("Claim after delay = %v %q, want delayed", ok, it.JobID)
	}
}

func TestMemoryClaimedInvisible(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	s.Enqueue(ctx, Item{JobID: "only"})
	if _, ok, _ := s.Claim(ctx); !ok {
		t.Fatal("first claim failed")
	}
	if _, ok, _ := s.Claim(ctx); ok {
		t.Error("claimed item visible to a second claimant")
	}
}

func TestMemoryAckRemoves(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	ctx := context.Background()

	s.Enqueue(ctx, Item{JobID: "j"})
	s.Claim(ctx)
	if err := s.Ack(ctx, "j"); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	// Acked items never come back, even after the visibility timeout.
	time.Sleep(10 * time.Millisecond)
	s.ReapExpired(ctx)
	if _, ok, _ := s.Claim(ctx); ok {
		t.Error("acked item reappeared")
	}
}

func TestMemoryAckUnclaimed(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	if err := s.Ack(context.Background(), "ghost"); err == nil {
		t.Error("Ack of unclaimed job should fail")
	}
}

func TestMemoryReleaseRequeuesWithAttempt(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	s.Enqueue(ctx, Item{JobID: "j", Attempt: 1})
	s.Claim(ctx)
	if err := s.Release(ctx, "j", time.Now()); err != nil {
		t.Fatalf("Release: %v", err)
	}

	it, ok, _ := s.Claim(ctx)
	if !ok {
		t.Fatal("released item not claimable")
	}
	if it.Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", it.Attempt)
	}
}

func TestMemoryReapExpired(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	s.Enqueue(ctx, Item{JobID: "stale"})
	s.Claim(ctx)
	time.Sleep(30 * time.Millisecond)

	n, err := s.ReapExpired(ctx)
	if err != nil {
		t.Fatalf("ReapExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("reaped %d, want 1", n)
	}
	if _, ok, _ := s.Claim(ctx); !ok {
		t.Error("reaped item not claimable again")
	}
}

func TestMemoryLen(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	s.Enqueue(ctx, Item{JobID: "a"})
	s.Enqueue(ctx, Item{JobID: "b"})
	if n, _ := s.Len(ctx); n != 2 {
		t.Errorf("Len = %d, want 2", n)
	}

	s.Claim(ctx)
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("Len after claim = %d, want 1 (claimed items not queued)", n)
	}
}
