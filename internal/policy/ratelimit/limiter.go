// Package ratelimit gates fetches per domain: rolling minute and hour
// budgets plus a minimum inter-request delay.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/robowatch/crawler/internal/crawl"
	"github.com/robowatch/crawler/internal/telemetry"
)

// Config holds limiter-wide knobs.
type Config struct {
	// MaxWait caps how long a single Acquire may block before failing
	// with crawl.ErrRateLimitExceeded. Zero means 30s.
	MaxWait time.Duration
}

const defaultMaxWait = 30 * time.Second

// Limiter manages per-domain rate limits. Callers on different domains
// proceed independently; callers on the same domain are serialized.
type Limiter struct {
	mu      sync.Mutex
	domains map[string]*domainLimiter
	maxWait time.Duration
}

type domainLimiter struct {
	mu        sync.Mutex
	cfg       crawl.RateLimitConfig
	minute    *rate.Limiter
	hour      *rate.Limiter
	minDelay  time.Duration
	lastGrant time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &Limiter{
		domains: make(map[string]*domainLimiter),
		maxWait: maxWait,
	}
}

// Acquire blocks until the domain's cadence permits another request, or
// fails with crawl.ErrRateLimitExceeded once the wait ceiling is hit.
// Context cancellation propagates as the context's own error.
func (l *Limiter) Acquire(ctx context.Context, domain string, cfg crawl.RateLimitConfig) error {
	d := l.domain(domain, cfg)

	// Serialize same-domain callers so one job consumes one slot of the
	// domain budget at a time.
	d.mu.Lock()
	defer d.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	start := time.Now()
	if err := d.waitMinDelay(waitCtx); err != nil {
		return l.mapWaitError(ctx, err)
	}
	if err := d.minute.Wait(waitCtx); err != nil {
		return l.mapWaitError(ctx, err)
	}
	if err := d.hour.Wait(waitCtx); err != nil {
		return l.mapWaitError(ctx, err)
	}
	d.lastGrant = time.Now()

	if delay := time.Since(start); delay > time.Millisecond {
		telemetry.ObserveRateLimitDelay(domain, delay)
	}
	return nil
}

func (l *Limiter) domain(domain string, cfg crawl.RateLimitConfig) *domainLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.domains[domain]
	if !ok {
		d = &domainLimiter{
			cfg:      cfg,
			minute:   rate.NewLimiter(perWindow(cfg.RequestsPerMinute, time.Minute), 1),
			hour:     rate.NewLimiter(perWindow(cfg.RequestsPerHour, time.Hour), 1),
			minDelay: cfg.Delay(),
		}
		l.domains[domain] = d
		return d
	}
	if d.cfg != cfg {
		// Operator changed the target's rate limit; apply it to the live
		// limiter without resetting its grant history.
		d.cfg = cfg
		d.minute.SetLimit(perWindow(cfg.RequestsPerMinute, time.Minute))
		d.hour.SetLimit(perWindow(cfg.RequestsPerHour, time.Hour))
		d.minDelay = cfg.Delay()
	}
	return d
}

func (l *Limiter) mapWaitError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return crawl.ErrRateLimitExceeded
	}
	// rate.Wait also fails fast when the deadline cannot possibly be met.
	return crawl.ErrRateLimitExceeded
}

// waitMinDelay sleeps out the remainder of the configured inter-request
// delay since the previous grant. Must hold d.mu.
func (d *domainLimiter) waitMinDelay(ctx context.Context) error {
	if d.minDelay <= 0 || d.lastGrant.IsZero() {
		return nil
	}
	remaining := time.Until(d.lastGrant.Add(d.minDelay))
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func perWindow(n int, window time.Duration) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(window / time.Duration(n))
}
