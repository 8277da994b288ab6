// Package redis provides the Redis client and the Redis-backed stores: authorization
// codes, the JWT revocation list, and an in-process fallback for the latter.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/pkg/logger"
)

// keyPrefix namespaces every key written by the service.
const keyPrefix = "authcore:"

// NewClient connects to Redis and verifies the connection with a ping.
//
// Parameters:
//   - ctx: bounds the initial ping
//   - cfg: address, credentials and pool settings
//   - log: connection lifecycle logging
func NewClient(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (redis.UniversalClient, error) {
	log = log.WithComponent("Redis")

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error(ctx, "Redis ping failed", err, logger.String("addr", cfg.Address))
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info(ctx, "Redis connection established",
		logger.String("addr", cfg.Address),
		logger.Int("db", cfg.DB),
		logger.Int("pool_size", cfg.PoolSize),
	)
	return client, nil
}
