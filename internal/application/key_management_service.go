// Package application provides the application layer services.
package application

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/authcore/internal/application/dto"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/logger"
)

// SigningKeyManager is the key ring surface used for lifecycle operations.
type SigningKeyManager interface {
	Rotate(ctx context.Context) (*models.SigningKeyPair, error)
	ActiveKey() (*models.SigningKeyPair, error)
	Keys() []*models.SigningKeyPair
	ShouldRotate(now time.Time) bool
	Purge(ctx context.Context) int
}

// KeyManagementService is the application-layer service responsible for orchestrating
// signing key lifecycle events: manual rotation, listing, and scheduled rotation.
type KeyManagementService struct {
	ring   SigningKeyManager
	audit  service.AuditService
	logger logger.Logger

	// rotateMu serializes rotations so two concurrent requests cannot both retire the same key.
	rotateMu sync.Mutex
}

// NewKeyManagementService creates a new instance of the KeyManagementService.
func NewKeyManagementService(ring SigningKeyManager, audit service.AuditService, log logger.Logger) *KeyManagementService {
	return &KeyManagementService{
		ring:   ring,
		audit:  audit,
		logger: log.WithComponent("KeyManagementService"),
	}
}

// Rotate makes a freshly generated key active. The previous key stays verifiable for the
// retention window. On failure the ring keeps its previous state.
func (s *KeyManagementService) Rotate(ctx context.Context, actorID string) (*dto.KeyRotationResponse, error) {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	var oldKID string
	if prev, err := s.ring.ActiveKey(); err == nil {
		oldKID = prev.KID
	}

	pair, err := s.ring.Rotate(ctx)
	if err != nil {
		s.logger.Error(ctx, "signing key rotation failed", err, logger.String("actor_id", actorID))
		s.logEvent(ctx, models.NewAuditEvent(constants.AuditEventKeyRotated, "failure", "signing key rotation failed").
			WithActor(actorID).
			WithResultCode(constants.ErrCodeServerError))
		return nil, err
	}

	s.logEvent(ctx, models.NewAuditEvent(constants.AuditEventKeyRotated, "success", "signing key rotated").
		WithActor(actorID).
		WithMetadata(map[string]string{"kid": pair.KID, "previous_kid": oldKID}))

	return &dto.KeyRotationResponse{NewKeyID: pair.KID, OldKeyID: oldKID}, nil
}

// List describes every verifiable key, oldest first.
func (s *KeyManagementService) List(ctx context.Context) []dto.SigningKeyInfo {
	keys := s.ring.Keys()
	out := make([]dto.SigningKeyInfo, 0, len(keys))
	for _, k := range keys {
		info := dto.SigningKeyInfo{
			KID:       k.KID,
			Algorithm: constants.SigningAlgorithm,
			Active:    k.IsActive,
			CreatedAt: k.CreatedAt,
		}
		if k.PublicKey != nil {
			info.KeyBits = k.PublicKey.N.BitLen()
		}
		if !k.RetiredAt.IsZero() {
			retired := k.RetiredAt
			info.RetiredAt = &retired
		}
		out = append(out, info)
	}
	return out
}

// RotateIfDue rotates when the active key is older than the rotation interval and
// purges keys past retention either way. It reports whether a rotation happened.
func (s *KeyManagementService) RotateIfDue(ctx context.Context, now time.Time) (bool, error) {
	defer s.ring.Purge(ctx)

	if !s.ring.ShouldRotate(now) {
		return false, nil
	}
	if _, err := s.Rotate(ctx, "system"); err != nil {
		return false, err
	}
	return true, nil
}

func (s *KeyManagementService) logEvent(ctx context.Context, event *models.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Error(ctx, "failed to log key rotation event", err)
	}
}

// KeyRotationScheduler runs scheduled rotation and expired-code cleanup on a ticker.
type KeyRotationScheduler struct {
	keys   *KeyManagementService
	codes  repository.AuthorizationCodeStore
	clock  service.Clock
	period time.Duration
	logger logger.Logger
}

// NewKeyRotationScheduler creates a scheduler. codes may be nil.
func NewKeyRotationScheduler(keys *KeyManagementService, codes repository.AuthorizationCodeStore, clock service.Clock, period time.Duration, log logger.Logger) *KeyRotationScheduler {
	if clock == nil {
		clock = service.SystemClock{}
	}
	if period <= 0 {
		period = time.Hour
	}
	return &KeyRotationScheduler{
		keys:   keys,
		codes:  codes,
		clock:  clock,
		period: period,
		logger: log.WithComponent("KeyRotationScheduler"),
	}
}

// Run ticks until ctx is cancelled. A failed tick is logged and the next one retries.
func (s *KeyRotationScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.logger.Info(ctx, "key rotation scheduler started", logger.Duration("period", s.period))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "key rotation scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one scheduling pass.
func (s *KeyRotationScheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	rotated, err := s.keys.RotateIfDue(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "scheduled key rotation failed; previous key remains active", err)
	} else if rotated {
		s.logger.Info(ctx, "scheduled key rotation completed")
	}

	if s.codes == nil {
		return
	}
	n, err := s.codes.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Warn(ctx, "failed to delete expired authorization codes", logger.Err(err))
		return
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired authorization codes deleted", logger.Int64("count", n))
	}
}
