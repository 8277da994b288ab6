package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/errors"
)

const codeKeyPrefix = keyPrefix + "code:"

// consumedGrace keeps a consumed code around briefly so a replay is reported as
// already used rather than unknown.
const consumedGrace = time.Minute

// CodeStore is a Redis-backed repository.AuthorizationCodeStore. Codes expire through
// the key TTL; consumption is an optimistic WATCH/MULTI transaction.
type CodeStore struct {
	client redis.UniversalClient
	clock  service.Clock
}

// NewCodeStore creates a new CodeStore. Key TTLs are measured from clock.
func NewCodeStore(client redis.UniversalClient, clock service.Clock) *CodeStore {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &CodeStore{client: client, clock: clock}
}

var _ repository.AuthorizationCodeStore = (*CodeStore)(nil)

func codeKey(codeHash string) string { return codeKeyPrefix + codeHash }

func (s *CodeStore) Save(ctx context.Context, code *models.AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return errors.ErrServerError("failed to encode authorization code").WithCause(err)
	}
	ttl := code.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return errors.ErrInvalidRequest("authorization code is already expired")
	}
	ok, err := s.client.SetNX(ctx, codeKey(code.CodeHash), data, ttl).Result()
	if err != nil {
		return errors.ErrServerError("failed to store authorization code").WithCause(err)
	}
	if !ok {
		return errors.ErrServerError("authorization code collision")
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, codeHash string) (*models.AuthorizationCode, error) {
	data, err := s.client.Get(ctx, codeKey(codeHash)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.ErrNotFound("authorization_code", "")
	}
	if err != nil {
		return nil, errors.ErrServerError("failed to read authorization code").WithCause(err)
	}
	var code models.AuthorizationCode
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, errors.ErrServerError("failed to decode authorization code").WithCause(err)
	}
	return &code, nil
}

// Consume marks the code consumed inside a WATCH transaction. A concurrent writer
// aborts the transaction, and the loser reports invalid_grant.
func (s *CodeStore) Consume(ctx context.Context, codeHash string, now time.Time) error {
	key := codeKey(codeHash)
	invalid := errors.ErrInvalidGrant("authorization code is invalid, expired or already used")

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return invalid
		}
		if err != nil {
			return err
		}

		var code models.AuthorizationCode
		if err := json.Unmarshal(data, &code); err != nil {
			return err
		}
		if !code.IsRedeemable(now) {
			return invalid
		}

		code.Consumed = true
		consumedAt := now
		code.ConsumedAt = &consumedAt
		updated, err := json.Marshal(&code)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, consumedGrace)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, redis.TxFailedErr):
		return invalid
	default:
		if _, ok := errors.AsAuthError(err); ok {
			return err
		}
		return errors.ErrServerError("failed to consume authorization code").WithCause(fmt.Errorf("redis: %w", err))
	}
}

// DeleteExpired is a no-op; Redis expires codes on its own.
func (s *CodeStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
