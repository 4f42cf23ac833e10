// Package server throttles inbound events per connection so a single client
// cannot monopolize the hub's dispatch loop.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newEventLimiter allows cfg.Burst events at once, refilled at cfg.Burst
// events per cfg.RefillInterval.
func newEventLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}
