package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
)

// idleBucketTTL evicts buckets that have not been touched for a while.
const idleBucketTTL = 10 * time.Minute

// LocalRateLimiter is a single-process service.RateLimiter. It serves deployments
// without Redis and stands in for Redis while it is unreachable.
type LocalRateLimiter struct {
	limit   rate.Limit
	burst   int
	clock   service.Clock
	metrics service.Metrics
	buckets *cache.Cache
}

var _ service.RateLimiter = (*LocalRateLimiter)(nil)

// NewLocalRateLimiter creates an in-process limiter with one bucket per identifier.
func NewLocalRateLimiter(cfg Config, clock service.Clock, metrics service.Metrics) *LocalRateLimiter {
	if clock == nil {
		clock = service.SystemClock{}
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	return &LocalRateLimiter{
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   cfg.Burst,
		clock:   clock,
		metrics: metrics,
		buckets: cache.New(idleBucketTTL, idleBucketTTL),
	}
}

func bucketKey(scope constants.RateLimitScope, identifier string) string {
	return string(scope) + ":" + identifier
}

func (l *LocalRateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.buckets.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	// Add fails if another goroutine won the race; use theirs.
	if err := l.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Allow takes one token from the bucket for (scope, identifier).
func (l *LocalRateLimiter) Allow(_ context.Context, scope constants.RateLimitScope, identifier string) (*service.RateLimitResult, error) {
	now := l.clock.Now()
	lim := l.bucket(bucketKey(scope, identifier))

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		l.metrics.RecordRateLimitHit(string(scope))
		return &service.RateLimitResult{Allowed: false, Limit: int64(l.burst)}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		l.metrics.RecordRateLimitHit(string(scope))
		return &service.RateLimitResult{
			Allowed:    false,
			Limit:      int64(l.burst),
			RetryAfter: delay,
			ResetAt:    now.Add(delay),
		}, nil
	}

	remaining := int64(math.Floor(lim.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return &service.RateLimitResult{
		Allowed:   true,
		Limit:     int64(l.burst),
		Remaining: remaining,
		ResetAt:   now,
	}, nil
}

// Reset drops the bucket for (scope, identifier).
func (l *LocalRateLimiter) Reset(scope constants.RateLimitScope, identifier string) {
	l.buckets.Delete(bucketKey(scope, identifier))
}
