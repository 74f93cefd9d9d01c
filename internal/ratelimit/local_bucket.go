package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localSweepInterval = time.Minute

type localEntry struct {
	limiter *rate.Limiter
	rate    float64
	burst   int
	seen    time.Time
}

// LocalBucket keeps one rate.Limiter per key in process memory. Used when
// Redis is not configured. Idle keys are swept at most once per
// localSweepInterval.
type LocalBucket struct {
	mu        sync.Mutex
	entries   map[string]*localEntry
	lastSweep time.Time
	now       func() time.Time
}

func NewLocalBucket() *LocalBucket {
	return newLocalBucketWithClock(time.Now)
}

func newLocalBucketWithClock(now func() time.Time) *LocalBucket {
	return &LocalBucket{
		entries:   make(map[string]*localEntry),
		lastSweep: now(),
		now:       now,
	}
}

func (b *LocalBucket) Allow(_ context.Context, key string, r float64, burst int) (*Result, error) {
	if err := validate(key, r, burst); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	entry, ok := b.entries[key]
	if !ok || entry.rate != r || entry.burst != burst {
		entry = &localEntry{
			limiter: rate.NewLimiter(rate.Limit(r), burst),
			rate:    r,
			burst:   burst,
		}
		b.entries[key] = entry
	}
	entry.seen = now

	allowed := entry.limiter.AllowN(now, 1)
	remaining := entry.limiter.TokensAt(now)
	b.maybeSweep(now)
	return newResult(allowed, remaining, r, burst), nil
}

// maybeSweep drops keys idle long enough to have refilled completely.
func (b *LocalBucket) maybeSweep(now time.Time) {
	if now.Sub(b.lastSweep) < localSweepInterval {
		return
	}
	b.lastSweep = now
	for key, entry := range b.entries {
		if now.Sub(entry.seen) > bucketTTL(entry.rate, entry.burst) {
			delete(b.entries, key)
		}
	}
}

func (b *LocalBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
