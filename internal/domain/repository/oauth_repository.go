package repository

import (
	"context"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
)

// OAuthClientRepository stores registered OAuth clients.
type OAuthClientRepository interface {
	// Create inserts a client. A duplicate client_id is reported as an error.
	Create(ctx context.Context, client *models.OAuthClient) error

	// GetByID returns the client or a not_found error.
	GetByID(ctx context.Context, clientID string) (*models.OAuthClient, error)

	// Revoke disables a client.
	Revoke(ctx context.Context, clientID string) error
}

// AuthorizationCodeStore stores authorization codes keyed by the SHA-256 of the code.
type AuthorizationCodeStore interface {
	// Save inserts a new, unconsumed code.
	Save(ctx context.Context, code *models.AuthorizationCode) error

	// Get returns the code record or a not_found error.
	Get(ctx context.Context, codeHash string) (*models.AuthorizationCode, error)

	// Consume atomically flips consumed=false to true for an unexpired code. When two callers race,
	// exactly one succeeds; every other caller receives an invalid_grant error.
	Consume(ctx context.Context, codeHash string, now time.Time) error

	// DeleteExpired removes codes that expired before now and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RefreshTokenStore stores opaque refresh tokens keyed by the SHA-256 of the token.
type RefreshTokenStore interface {
	// Save inserts a new refresh token.
	Save(ctx context.Context, token *models.RefreshToken) error

	// Consume atomically revokes an active, unexpired token issued to clientID and returns it.
	// Reuse, expiry or a client mismatch yield invalid_grant.
	Consume(ctx context.Context, tokenHash, clientID string, now time.Time) (*models.RefreshToken, error)

	// Revoke revokes a token issued to clientID. Unknown tokens are not an error (RFC 7009).
	Revoke(ctx context.Context, tokenHash, clientID string, now time.Time) error
}
