package alert

import (
	"sync"
	"time"
)

// TokenBucket throttles outgoing notifications across all alerts.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	ratePerS   float64
	burst      float64
	lastRefill time.Time
	disabled   bool

	now   func() time.Time
	sleep func(time.Duration)
}

// NewTokenBucket allows perMinute sends per minute with bursts up to burst.
// perMinute <= 0 disables throttling.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	if perMinute <= 0 {
		return &TokenBucket{disabled: true}
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &TokenBucket{
		tokens:     float64(burst),
		ratePerS:   float64(perMinute) / 60.0,
		burst:      float64(burst),
		lastRefill: time.Now(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func (t *TokenBucket) Allow() bool {
	if t == nil || t.disabled {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked()
	if t.tokens >= 1 {
		t.tokens--
		return true
	}
	return false
}

// WaitForToken blocks up to maxWait for a token to become available.
func (t *TokenBucket) WaitForToken(maxWait time.Duration) bool {
	if t == nil || t.disabled {
		return true
	}
	deadline := t.now().Add(maxWait)
	for {
		if t.Allow() {
			return true
		}
		now := t.now()
		if !now.Before(deadline) {
			return false
		}
		wait := min(t.timeUntilNext(), deadline.Sub(now))
		if wait > 0 {
			t.sleep(wait)
		}
	}
}

func (t *TokenBucket) timeUntilNext() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refillLocked()
	if t.tokens >= 1 || t.ratePerS <= 0 {
		return 0
	}
	sec := (1 - t.tokens) / t.ratePerS
	return time.Duration(sec * float64(time.Second))
}

func (t *TokenBucket) refillLocked() {
	now := t.now()
	elapsed := now.Sub(t.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	t.tokens = min(t.tokens+elapsed*t.ratePerS, t.burst)
	t.lastRefill = now
}
