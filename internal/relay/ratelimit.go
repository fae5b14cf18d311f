package relay

import (
	"sync"
	"time"
)

const (
	rateLimitPerMinute = 600 // cursor traffic is high-frequency
	staleAfter         = 5 * time.Minute
)

// RateLimiter caps envelopes per user per minute with a resetting window.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether the user may send another envelope this minute.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	window, exists := rl.clients[userID]
	if !exists {
		rl.clients[userID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(window.windowStart) >= time.Minute {
		window.count = 1
		window.windowStart = now
		return true
	}

	if window.count >= rateLimitPerMinute {
		return false
	}

	window.count++
	return true
}

// Cleanup drops stale per-user state. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, window := range rl.clients {
		if now.Sub(window.windowStart) > staleAfter {
			delete(rl.clients, userID)
		}
	}
}
