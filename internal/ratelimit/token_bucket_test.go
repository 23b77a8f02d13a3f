package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestTokenBucket_BurstThenRefuse(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 3, 1)

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("allow %d: expected true", i)
		}
	}
	if b.Allow() {
		t.Fatalf("expected bucket exhausted")
	}
}

func TestTokenBucket_RefillsAtRate(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 2, 2)

	if !b.Allow() || !b.Allow() {
		t.Fatalf("expected initial burst of 2")
	}
	if b.Allow() {
		t.Fatalf("expected bucket exhausted")
	}

	clk.Advance(500 * time.Millisecond) // 2 tokens/sec -> exactly one token back
	if !b.Allow() {
		t.Fatalf("expected one token after 500ms")
	}
	if b.Allow() {
		t.Fatalf("expected bucket exhausted again")
	}
}

func TestTokenBucket_ClampsToCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 2, 100)

	if !b.Allow() || !b.Allow() {
		t.Fatalf("expected initial burst of 2")
	}

	clk.Advance(time.Hour)
	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("allow %d after long idle: expected true", i)
		}
	}
	if b.Allow() {
		t.Fatalf("idle refill must clamp to capacity")
	}
}

func TestTokenBucket_ZeroRateNeverRefills(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	b := NewTokenBucket(clk, 1, 0)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}
	clk.Advance(time.Hour)
	if b.Allow() {
		t.Fatalf("zero rate must never refill")
	}
}

func TestTokenBucket_TimeGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clk, 1, 1)

	if !b.Allow() {
		t.Fatalf("expected initial token")
	}
	clk.Advance(-time.Hour)
	if b.Allow() {
		t.Fatalf("backwards clock must not mint tokens")
	}
	clk.Advance(time.Hour + time.Second)
	if !b.Allow() {
		t.Fatalf("expected refill once the clock recovers")
	}
}
