package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens added per second
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}

	return false
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	tokensToAdd := int64(now.Sub(tb.lastRefill).Seconds()) * tb.refillRate

	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// RateLimiter manages token buckets for multiple keys (user IDs, IP addresses)
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	lastSeen   map[string]time.Time
	capacity   int64
	refillRate int64
	maxIdle    time.Duration
}

// NewRateLimiter creates a new keyed rate limiter
func NewRateLimiter(capacity, refillRate int64) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		lastSeen:   make(map[string]time.Time),
		capacity:   capacity,
		refillRate: refillRate,
		maxIdle:    10 * time.Minute,
	}
}

// Allow checks if a request from the given key is allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getBucket(key).Allow()
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	// Drop buckets for keys not seen recently so the map does not grow unbounded.
	for k, seen := range rl.lastSeen {
		if now.Sub(seen) > rl.maxIdle {
			delete(rl.buckets, k)
			delete(rl.lastSeen, k)
		}
	}

	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = NewTokenBucket(rl.capacity, rl.refillRate)
		rl.buckets[key] = bucket
	}
	rl.lastSeen[key] = now

	return bucket
}
