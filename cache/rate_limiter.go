package cache

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter throttles vote clicks per user with a token bucket.
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
}

// NewUserRateLimiter allows perSecond events per user with the given burst.
func NewUserRateLimiter(perSecond float64, burst int) *UserRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &UserRateLimiter{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether userID may act now.
func (l *UserRateLimiter) Allow(userID string) bool {
	return l.AllowAt(userID, time.Now())
}

// AllowAt reports whether userID may act at t.
func (l *UserRateLimiter) AllowAt(userID string, t time.Time) bool {
	l.mu.Lock()
	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = t
	l.mu.Unlock()

	return ul.limiter.AllowN(t, 1)
}

// Cleanup drops limiters idle since before cutoff and returns how many.
func (l *UserRateLimiter) Cleanup(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, ul := range l.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked users.
func (l *UserRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
