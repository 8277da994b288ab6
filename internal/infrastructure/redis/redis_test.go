package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Address: mr.Addr(), PoolSize: 20}, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testCode(hash string, ttl time.Duration) *models.AuthorizationCode {
	now := time.Now().UTC()
	return &models.AuthorizationCode{
		CodeHash:            hash,
		ClientID:            "mcp_client_abc",
		UserID:              "user-1",
		TenantID:            "tenant-1",
		RedirectURI:         "https://app/cb",
		Scope:               "fitness:read",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Address: addr}, logger.NewNoopLogger())
	assert.Error(t, err)
}

func TestCodeStore_SaveGetConsume(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewCodeStore(client, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCode("h1", 10*time.Minute)))
	assert.True(t, mr.Exists("authcore:code:h1"))

	got, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.False(t, got.Consumed)

	require.NoError(t, store.Consume(ctx, "h1", time.Now()))

	err = store.Consume(ctx, "h1", time.Now())
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	got, err = store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, got.Consumed)
	assert.NotNil(t, got.ConsumedAt)

	_, err = store.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestCodeStore_Expiry(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewCodeStore(client, nil)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCode("h2", time.Minute)))

	err := store.Consume(ctx, "h2", time.Now().Add(2*time.Minute))
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	mr.FastForward(2 * time.Minute)
	err = store.Consume(ctx, "h2", time.Now())
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant))

	n, err := store.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCodeStore_RejectsExpiredAndDuplicateSave(t *testing.T) {
	_, client := setupRedis(t)
	store := NewCodeStore(client, nil)
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, testCode("old", -time.Second)))

	require.NoError(t, store.Save(ctx, testCode("dup", time.Minute)))
	assert.Error(t, store.Save(ctx, testCode("dup", time.Minute)))
}

func TestCodeStore_TTLFollowsInjectedClock(t *testing.T) {
	mr, client := setupRedis(t)
	clock := &fixedClock{now: time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewCodeStore(client, clock)
	ctx := context.Background()

	code := testCode("clocked", time.Minute)
	code.CreatedAt = clock.now
	code.ExpiresAt = clock.now.Add(10 * time.Minute)
	require.NoError(t, store.Save(ctx, code))
	assert.Equal(t, 10*time.Minute, mr.TTL("authcore:code:clocked"))

	stale := testCode("stale", time.Minute)
	stale.ExpiresAt = clock.now.Add(-time.Second)
	assert.Error(t, store.Save(ctx, stale))
}

func TestCodeStore_ConcurrentConsume(t *testing.T) {
	_, client := setupRedis(t)
	store := NewCodeStore(client, nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testCode("race", time.Minute)))

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Consume(ctx, "race", time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidGrant), "unexpected error: %v", err)
	}
}
