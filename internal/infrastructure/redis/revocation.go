package redis

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authcore/internal/domain/service"
)

const revokedKeyPrefix = keyPrefix + "revoked:"

// RevocationStore keeps revoked jtis in Redis until their revocation lapses.
type RevocationStore struct {
	rdb   redis.UniversalClient
	clock service.Clock
}

// NewRevocationStore creates a Redis-backed service.RevocationStore.
func NewRevocationStore(rdb redis.UniversalClient, clock service.Clock) *RevocationStore {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &RevocationStore{rdb: rdb, clock: clock}
}

var _ service.RevocationStore = (*RevocationStore)(nil)

func (s *RevocationStore) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryRevocationStore is the single-process revocation list used when Redis is
// disabled. Entries vanish when the process restarts.
type MemoryRevocationStore struct {
	entries *cache.Cache
	clock   service.Clock
}

// NewMemoryRevocationStore creates an in-process service.RevocationStore.
func NewMemoryRevocationStore(clock service.Clock) *MemoryRevocationStore {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &MemoryRevocationStore{entries: cache.New(cache.NoExpiration, 10*time.Minute), clock: clock}
}

var _ service.RevocationStore = (*MemoryRevocationStore)(nil)

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, until time.Time) error {
	ttl := until.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	s.entries.Set(jti, until, ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	v, ok := s.entries.Get(jti)
	if !ok {
		return false, nil
	}
	// go-cache expiry follows the wall clock; honour the injected clock as well.
	return s.clock.Now().Before(v.(time.Time)), nil
}
