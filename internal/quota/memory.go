package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter counts requests in process memory.
type MemoryLimiter struct {
	limit int
	now   func() time.Time

	mu     sync.Mutex
	counts map[string]int
	day    string
}

// NewMemoryLimiter creates an in-memory limiter. A limit <= 0 disables it.
func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		now:    time.Now,
		counts: make(map[string]int),
	}
}

// CheckDailyLimit counts one request for userID.
func (l *MemoryLimiter) CheckDailyLimit(_ context.Context, userID string) error {
	if l.limit <= 0 {
		return nil
	}

	now := l.now()
	day := now.UTC().Format(time.DateOnly)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop yesterday's counters.
	if day != l.day {
		l.counts = make(map[string]int)
		l.day = day
	}

	key := dayKey(userID, now)
	l.counts[key]++
	if l.counts[key] > l.limit {
		return exceeded(l.limit)
	}

	return nil
}
