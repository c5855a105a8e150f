package engine

import "sync"

// UsageSnapshot is the running cost and volume aggregate since startup.
type UsageSnapshot struct {
	JobsCompleted int64   `json:"jobs_completed"`
	JobsFailed    int64   `json:"jobs_failed"`
	CacheHits     int64   `json:"cache_hits"`
	BilledMinutes int64   `json:"billed_minutes"`
	CostUSD       float64 `json:"cost_usd"`
	Credits       int64   `json:"credits"`
}

// usageTracker accumulates billing totals across jobs. It is deliberately
// in-memory; durable accounting belongs to whoever consumes the ops endpoint.
type usageTracker struct {
	mu   sync.Mutex
	snap UsageSnapshot
}

func (u *usageTracker) recordCompleted(billedMinutes int, costUSD float64, credits int64) {
	u.mu.Lock()
	u.snap.JobsCompleted++
	u.snap.BilledMinutes += int64(billedMinutes)
	u.snap.CostUSD += costUSD
	u.snap.Credits += credits
	u.mu.Unlock()
}

func (u *usageTracker) recordFailed() {
	u.mu.Lock()
	u.snap.JobsFailed++
	u.mu.Unlock()
}

func (u *usageTracker) recordCacheHit() {
	u.mu.Lock()
	u.snap.CacheHits++
	u.mu.Unlock()
}

func (u *usageTracker) snapshot() UsageSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.snap
}
