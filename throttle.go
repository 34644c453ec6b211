package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultThrottleIdle = 30 * time.Minute

// LoginThrottle keeps one token bucket per username
type LoginThrottle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*throttleEntry
	lastGC   time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLoginThrottle allows burst attempts then one every "every" per username
func NewLoginThrottle(every time.Duration, burst int) *LoginThrottle {
	if burst <= 0 {
		burst = 1
	}
	return &LoginThrottle{
		limit:    rate.Every(every),
		burst:    burst,
		idle:     defaultThrottleIdle,
		limiters: map[string]*throttleEntry{},
	}
}

// Allow consumes a token for username at now
func (t *LoginThrottle) Allow(username string, now time.Time) bool {
	key := NormalizeUsername(username)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict(now)

	entry, ok := t.limiters[key]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evict drops buckets idle for longer than t.idle, at most once per idle period
func (t *LoginThrottle) evict(now time.Time) {
	if now.Sub(t.lastGC) < t.idle {
		return
	}
	t.lastGC = now
	for key, entry := range t.limiters {
		if now.Sub(entry.lastSeen) > t.idle {
			delete(t.limiters, key)
		}
	}
}
