package repository

import (
	"context"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
)

// SigningKeyRepository persists encrypted signing keys.
type SigningKeyRepository interface {
	// List returns every stored key, oldest first.
	List(ctx context.Context) ([]*models.SigningKey, error)

	// Rotate inserts key as the only active key and stamps retiredAt on every key it
	// replaces, in a single transaction.
	Rotate(ctx context.Context, key *models.SigningKey, retiredAt time.Time) error

	// Delete removes the given keys.
	Delete(ctx context.Context, kids ...string) error
}

// DataKeyRepository persists the MEK-encrypted data encryption key.
type DataKeyRepository interface {
	// GetActive returns the active DEK or a not_found error.
	GetActive(ctx context.Context) (*models.DataEncryptionKey, error)

	// Save inserts a DEK.
	Save(ctx context.Context, key *models.DataEncryptionKey) error
}
