package stationauth

import (
	"sync"

	"golang.org/x/time/rate"
)

// secondFactorLimiter throttles verification attempts per user with an
// in-process token bucket. It exists so a hot loop cannot brute-force
// codes between real rate-limit checks at the identity provider.
type secondFactorLimiter struct {
	ratePerMinute int
	burst         int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newSecondFactorLimiter(cfg SecondFactorConfig) *secondFactorLimiter {
	if cfg.VerifyRatePerMinute <= 0 {
		return nil
	}
	burst := cfg.VerifyBurst
	if burst <= 0 {
		burst = 1
	}
	return &secondFactorLimiter{
		ratePerMinute: cfg.VerifyRatePerMinute,
		burst:         burst,
		buckets:       make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more verification attempt is within budget
// for the given user. A nil limiter allows everything.
func (l *secondFactorLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	bucket, ok := l.buckets[userID]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(l.ratePerMinute)/60.0), l.burst)
		l.buckets[userID] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

// Reset clears the bucket for a user, called after successful
// verification so legitimate retries are not penalized.
func (l *secondFactorLimiter) Reset(userID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, userID)
	l.mu.Unlock()
}
