// Package ratelimit applies fixed politeness delays plus a per-host token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/topic-harvester/internal/crawler"
	"github.com/JakeFAU/topic-harvester/internal/metrics"
)

// Limiter manages per-host rate limits. It implements crawler.Politeness.
type Limiter struct {
	clock crawler.Clock

	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond caps requests per host. Zero or less disables the cap.
	RequestsPerSecond float64
	Burst             int
}

// New creates a new Limiter. The clock performs the fixed delays.
func New(cfg Config, clock crawler.Clock) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		clock:        clock,
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait sleeps for delay, then blocks until the host of rawURL has a token.
func (l *Limiter) Wait(ctx context.Context, rawURL string, delay time.Duration) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	start := time.Now()
	if delay > 0 {
		if err := l.clock.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("politeness delay: %w", err)
		}
	}
	if err := l.limiterFor(domain).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePolitenessDelay(domain, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	return limiter
}
