package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Flood applies a token bucket per user for inbound socket frames and
// periodically evicts buckets for users that went quiet.
type Flood struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byUser map[int64]*bucket
	hits   uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewFlood creates a per-user flood limiter; returns nil if args are invalid.
// A nil *Flood allows everything, so the relay can run unthrottled.
func NewFlood(perSecond float64, burst int, idleTTL time.Duration) *Flood {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Flood{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: idleTTL,
		byUser:  make(map[int64]*bucket),
	}
}

// Allow reports whether one frame from userID may be processed at now.
func (f *Flood) Allow(userID int64, now time.Time) bool {
	if f == nil {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.byUser[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(f.limit, f.burst)}
		f.byUser[userID] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	f.hits++
	if f.hits%512 == 0 {
		cutoff := now.Add(-f.idleTTL)
		for id, v := range f.byUser {
			if v.lastSeen.Before(cutoff) {
				delete(f.byUser, id)
			}
		}
	}
	return allowed
}
