package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per principal. Zero or negative rps
// disables limiting.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      float64
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64) *RateLimiter {
	rl := &RateLimiter{limiters: make(map[string]*limiterEntry), rps: rps}
	if rps > 0 {
		go rl.reapLoop()
	}
	return rl
}

// Allow reports whether the principal may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.rps <= 0 {
		return true
	}
	rl.mu.Lock()
	ent, ok := rl.limiters[key]
	if !ok {
		burst := int(rl.rps * 2)
		if burst < 1 {
			burst = 1
		}
		ent = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), burst)}
		rl.limiters[key] = ent
	}
	ent.lastSeen = time.Now()
	rl.mu.Unlock()
	return ent.limiter.Allow()
}

func (rl *RateLimiter) reapLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-30 * time.Minute)
		rl.mu.Lock()
		for key, ent := range rl.limiters {
			if ent.lastSeen.Before(cutoff) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}
