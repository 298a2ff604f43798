// Package ratelimit is the abstract quota gate fronting the HTTP surface,
// backing the 429 rate_limit_error response described in spec.md §6.1/§7.
package ratelimit

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"appgen/pkg/config"
)

// Denied is returned by Allow when a key has exhausted its quota. It
// carries everything the wire.RateLimitErrorPayload needs to render a
// useful client message.
type Denied struct {
	LimitType string
	Limit     int
	Period    string
}

func (d *Denied) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s (%d per %s)", d.LimitType, d.Limit, d.Period)
}

// Gate enforces a requests-per-minute budget per key (typically a caller's
// IP or AgentId), each with its own independent token bucket.
type Gate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	cfg      config.RateLimitCfg
}

// New constructs a Gate from a RateLimitCfg.
func New(cfg config.RateLimitCfg) *Gate {
	return &Gate{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:    cfg.Burst,
		cfg:      cfg,
	}
}

// Allow reports whether key may proceed, creating a fresh token bucket for
// keys seen for the first time.
func (g *Gate) Allow(key string) error {
	limiter := g.limiterFor(key)
	if limiter.Allow() {
		return nil
	}
	return &Denied{
		LimitType: "requests_per_minute",
		Limit:     g.cfg.RequestsPerMinute,
		Period:    "minute",
	}
}

func (g *Gate) limiterFor(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, ok := g.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(g.rps, g.burst)
		g.limiters[key] = limiter
	}
	return limiter
}

// Suggestions returns user-facing remediation text for a denial, the same
// shape as wire.RateLimitDetail.Suggestions.
func Suggestions() []string {
	return []string{
		"wait a minute before retrying",
		"reduce request frequency",
		"contact support if you need a higher quota",
	}
}
