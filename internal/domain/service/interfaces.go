// Package service defines the domain services of the authcore core and the narrow
// interfaces they depend on.
package service

import (
	"context"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/pkg/constants"
)

// Clock supplies the current time. Tests substitute a fixed or steppable clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// KeyRing is the read side of the signing key ring used by token issuance and validation.
type KeyRing interface {
	// ActiveKey returns the key that signs new tokens.
	ActiveKey() (*models.SigningKeyPair, error)

	// Key returns a verifiable key by kid. Purged and unknown kids return false.
	Key(kid string) (*models.SigningKeyPair, bool)
}

// RevocationStore tracks revoked JWT ids until the token can no longer be used or renewed.
type RevocationStore interface {
	// Revoke records jti as revoked until the given time.
	Revoke(ctx context.Context, jti string, until time.Time) error

	// IsRevoked reports whether jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RateLimitResult represents the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter checks per-identifier request budgets.
type RateLimiter interface {
	Allow(ctx context.Context, scope constants.RateLimitScope, identifier string) (*RateLimitResult, error)
}

// AuditService defines the interface for logging security-sensitive audit events.
// Implementations must never block the request path on a slow sink for long.
type AuditService interface {
	LogEvent(ctx context.Context, event *models.AuditEvent) error
}
