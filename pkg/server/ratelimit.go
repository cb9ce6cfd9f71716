package server

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// ObjectLimiter caps how fast any single object may burn through queued
// commands, so a hostile trigger loop cannot starve the rest of the queue
// even while staying inside its owner's quota.
type ObjectLimiter struct {
	mu       sync.Mutex
	limiters map[gamedb.DBRef]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewObjectLimiter builds a limiter granting each object rps commands per
// second with the given burst.
func NewObjectLimiter(rps float64, burst int) *ObjectLimiter {
	if rps <= 0 {
		rps = 100
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	return &ObjectLimiter{
		limiters: make(map[gamedb.DBRef]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether obj may execute another command right now.
func (l *ObjectLimiter) Allow(obj gamedb.DBRef) bool {
	l.mu.Lock()
	lim, ok := l.limiters[obj]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[obj] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// SetRate swaps the rate for all current and future limiters.
func (l *ObjectLimiter) SetRate(rps float64, burst int) {
	if rps <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rate.Limit(rps)
	if burst > 0 {
		l.burst = burst
	}
	for _, lim := range l.limiters {
		lim.SetLimit(l.rps)
		lim.SetBurst(l.burst)
	}
}

// Forget drops an object's limiter, freeing its state.
func (l *ObjectLimiter) Forget(obj gamedb.DBRef) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, obj)
}
