// Package ratelimit provides per-identifier rate limiting backed by Redis, with an
// in-process fallback when Redis is unavailable.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// Config holds the token bucket parameters shared by every scope.
type Config struct {
	// RequestsPerMinute is the steady refill rate.
	RequestsPerMinute int
	// Burst is the bucket capacity.
	Burst int
	// LocalFallback serves requests from an in-process bucket when Redis errors.
	LocalFallback bool
	// KeyPrefix is the Redis key prefix.
	KeyPrefix string
}

// ConfigFrom maps the rate_limit configuration section.
func ConfigFrom(cfg config.RateLimitConfig) Config {
	return Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
		LocalFallback:     cfg.LocalFallback,
		KeyPrefix:         "authcore:ratelimit",
	}
}

// tokenBucket refills at ARGV[2] tokens per second up to ARGV[1] and takes ARGV[3]
// tokens at ARGV[4] (unix ms). Returns {allowed, remaining, capacity, retry_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(tokens + elapsed * rate / 1000, capacity)

local allowed = 0
local retry_ms = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_ms = math.ceil((requested - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('PEXPIRE', key, math.ceil((capacity - tokens) / rate * 1000) + 60000)

return {allowed, math.floor(tokens), capacity, retry_ms}
`)

// RedisRateLimiter implements service.RateLimiter with a Redis token bucket shared by
// every replica.
type RedisRateLimiter struct {
	client   redis.UniversalClient
	cfg      Config
	clock    service.Clock
	metrics  service.Metrics
	logger   logger.Logger
	fallback *LocalRateLimiter
}

var _ service.RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter creates a new Redis-based rate limiter.
//
// Parameters:
//   - client: Redis client
//   - cfg: bucket parameters
//   - clock: time source for refill computation
//   - metrics: receives a hit for every rejected request
//   - log: Logger instance
func NewRedisRateLimiter(
	client redis.UniversalClient,
	cfg Config,
	clock service.Clock,
	metrics service.Metrics,
	log logger.Logger,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.ErrConfiguration("redis client is required")
	}
	if cfg.RequestsPerMinute <= 0 || cfg.Burst <= 0 {
		return nil, errors.ErrConfiguration("rate limit requires positive requests_per_minute and burst")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "authcore:ratelimit"
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}

	rl := &RedisRateLimiter{
		client:  client,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		logger:  log.WithComponent("RateLimiter"),
	}
	if cfg.LocalFallback {
		rl.fallback = NewLocalRateLimiter(cfg, clock, metrics)
	}

	rl.logger.Info(context.Background(), "Redis rate limiter initialized",
		logger.Int("requests_per_minute", cfg.RequestsPerMinute),
		logger.Int("burst", cfg.Burst),
		logger.Bool("local_fallback", cfg.LocalFallback),
	)
	return rl, nil
}

// Allow takes one token from the bucket for (scope, identifier).
func (rl *RedisRateLimiter) Allow(ctx context.Context, scope constants.RateLimitScope, identifier string) (*service.RateLimitResult, error) {
	now := rl.clock.Now()
	key := fmt.Sprintf("%s:%s:%s", rl.cfg.KeyPrefix, scope, identifier)
	perSecond := float64(rl.cfg.RequestsPerMinute) / 60

	res, err := tokenBucket.Run(ctx, rl.client, []string{key}, rl.cfg.Burst, perSecond, 1, now.UnixMilli()).Int64Slice()
	if err == nil && len(res) != 4 {
		err = fmt.Errorf("unexpected token bucket reply of length %d", len(res))
	}
	if err != nil {
		if rl.fallback != nil {
			rl.logger.Warn(ctx, "Redis rate limiter unavailable, using local bucket",
				logger.String("scope", string(scope)),
				logger.Err(err),
			)
			return rl.fallback.Allow(ctx, scope, identifier)
		}
		return nil, errors.ErrServerError("rate limiter unavailable").WithCause(err)
	}

	retryAfter := time.Duration(res[3]) * time.Millisecond
	result := &service.RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		Limit:      res[2],
		RetryAfter: retryAfter,
		ResetAt:    now.Add(retryAfter),
	}
	if !result.Allowed {
		rl.metrics.RecordRateLimitHit(string(scope))
	}
	return result, nil
}

// Reset clears the bucket for (scope, identifier).
func (rl *RedisRateLimiter) Reset(ctx context.Context, scope constants.RateLimitScope, identifier string) error {
	key := fmt.Sprintf("%s:%s:%s", rl.cfg.KeyPrefix, scope, identifier)
	if err := rl.client.Del(ctx, key).Err(); err != nil {
		return errors.ErrServerError("failed to reset rate limit").WithCause(err)
	}
	if rl.fallback != nil {
		rl.fallback.Reset(scope, identifier)
	}
	return nil
}
