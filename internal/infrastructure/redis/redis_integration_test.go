//go:build integration

package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/pkg/logger"
)

func TestRedis_ConcurrentConsumeAgainstRealServer(t *testing.T) {
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	resource, err := pool.Run("redis", "7-alpine", nil)
	require.NoError(t, err)
	defer func() {
		_ = pool.Purge(resource)
	}()

	addr := fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp"))
	ctx := context.Background()

	var client redis.UniversalClient
	require.NoError(t, pool.Retry(func() error {
		var err error
		client, err = NewClient(ctx, config.RedisConfig{Address: addr, PoolSize: 32}, logger.NewNoopLogger())
		return err
	}))
	defer client.Close()

	store := NewCodeStore(client, nil)
	require.NoError(t, store.Save(ctx, testCode("real-race", time.Minute)))

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Consume(ctx, "real-race", time.Now()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}
