// Package queue provides the priority queue backing the job scheduler.
// The Store contract mirrors a durable message queue: claimed items stay
// invisible for a visibility timeout and return to the queue if never acked,
// so a Postgres-backed store survives process restarts without losing work.
package queue

import (
	"context"
	"time"
)

// Item is one queued unit of work. Payload carries enough of the submission
// to rebuild the job after a restart.
type Item struct {
	JobID       string
	Priority    int       // higher is claimed first
	Attempt     int       // 1-based attempt about to run
	EnqueuedAt  time.Time // FIFO tie-break within equal priority
	AvailableAt time.Time // not claimable before this instant (retry backoff)
	Payload     []byte
}

// Store is the queue backend. Implementations must guarantee an item is held
// by at most one claimant at a time.
type Store interface {
	// Enqueue adds an item to the queue.
	Enqueue(ctx context.Context, it Item) error

	// Claim removes the best available item (highest priority, then oldest)
	// from visibility for the store's visibility timeout and returns it.
	// ok=false when nothing is claimable right now.
	Claim(ctx context.Context) (Item, bool, error)

	// Ack removes a claimed item permanently.
	Ack(ctx context.Context, jobID string) error

	// Release returns a claimed item to the queue, claimable no earlier than
	// availableAt, with its attempt counter advanced.
	Release(ctx context.Context, jobID string, availableAt time.Time) error

	// Len reports queued (unclaimed) items.
	Len(ctx context.Context) (int, error)

	// ReapExpired returns items whose claim outlived the visibility timeout
	// to the queue. Called periodically by the scheduler.
	ReapExpired(ctx context.Context) (int, error)

	// Ping reports backend reachability for the health endpoint.
	Ping(ctx context.Context) error

	// Type returns "memory" or "postgres".
	Type() string
}
