package gateway

import (
	"sync"
	"time"
)

const (
	defaultRateWindow = 10 * time.Second
	defaultRateMax    = 20
)

// RateLimiter bounds the number of accepted events per user to max
// within a trailing window. Each user's window is independent.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	window  time.Duration
	max     int
	now     func() time.Time
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = defaultRateWindow
	}
	if max <= 0 {
		max = defaultRateMax
	}

	return &RateLimiter{
		windows: make(map[string][]time.Time),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

// Limited prunes expired timestamps from the user's window and reports
// whether the current attempt exceeds the budget. A rejected attempt is
// not recorded, so a user over the limit recovers as soon as old
// entries expire.
func (rl *RateLimiter) Limited(userId string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)

	events := rl.windows[userId]
	live := events[:0]
	for _, ts := range events {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}

	if len(live) >= rl.max {
		rl.windows[userId] = live
		return true
	}

	rl.windows[userId] = append(live, now)
	return false
}

// Discard drops the user's window entirely. Called when the user's last
// connection closes so windows do not accumulate for departed users.
func (rl *RateLimiter) Discard(userId string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.windows, userId)
}
