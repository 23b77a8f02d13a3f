package ratelimit

import (
	"sync"
	"time"
)

// nanoTokensPerToken is the fixed-point scale: one token is 1e9
// nano-tokens, so a rate of X tokens/sec adds X nano-tokens per elapsed
// nanosecond. Integer arithmetic avoids float rounding drift.
const nanoTokensPerToken int64 = int64(time.Second)

// TokenBucket is a deterministic token bucket refilled at an integer
// rate (tokens/sec) from a provided Clock.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	capacity int64 // tokens
	rate     int64 // tokens/sec

	available int64 // nano-tokens
	last      time.Time
}

func NewTokenBucket(clock Clock, capacity, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if capacity < 0 {
		capacity = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      rate,
		available: capacity * nanoTokensPerToken,
		last:      clock.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	if b.available < nanoTokensPerToken {
		return false
	}
	b.available -= nanoTokensPerToken
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards. Skip the refill and move the reference point.
		b.last = now
		return
	}

	elapsed := now.Sub(b.last).Nanoseconds()
	b.last = now
	if elapsed <= 0 || b.rate <= 0 || b.capacity <= 0 {
		return
	}

	capacityNano := b.capacity * nanoTokensPerToken
	if b.available >= capacityNano {
		b.available = capacityNano
		return
	}

	// rate is tokens/sec, which equals nano-tokens/ns in the fixed-point
	// representation. If the idle period is long enough to fill the bucket,
	// clamp instead of multiplying, which also avoids overflow.
	need := capacityNano - b.available
	if elapsed >= need/b.rate+1 {
		b.available = capacityNano
		return
	}
	b.available += elapsed * b.rate
	if b.available > capacityNano {
		b.available = capacityNano
	}
}
