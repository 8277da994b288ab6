package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
)

// SigningKeyRepository is the gorm implementation of repository.SigningKeyRepository.
type SigningKeyRepository struct {
	db *gorm.DB
}

// NewSigningKeyRepository creates a new SigningKeyRepository.
func NewSigningKeyRepository(db *gorm.DB) *SigningKeyRepository {
	return &SigningKeyRepository{db: db}
}

var _ repository.SigningKeyRepository = (*SigningKeyRepository)(nil)

func (r *SigningKeyRepository) List(ctx context.Context) ([]*models.SigningKey, error) {
	var keys []*models.SigningKey
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&keys).Error; err != nil {
		return nil, lookupError(err, "signing_key", "")
	}
	return keys, nil
}

func (r *SigningKeyRepository) Rotate(ctx context.Context, key *models.SigningKey, retiredAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.SigningKey{}).
			Where("is_active = ?", true).
			Updates(map[string]interface{}{"is_active": false, "retired_at": retiredAt}).Error
		if err != nil {
			return writeError(err, "retire signing key")
		}
		key.IsActive = true
		key.RetiredAt = nil
		if err := tx.Create(key).Error; err != nil {
			return writeError(err, "store signing key")
		}
		return nil
	})
}

func (r *SigningKeyRepository) Delete(ctx context.Context, kids ...string) error {
	if len(kids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("kid IN ?", kids).Delete(&models.SigningKey{}).Error; err != nil {
		return writeError(err, "delete signing keys")
	}
	return nil
}

// DataKeyRepository is the gorm implementation of repository.DataKeyRepository.
type DataKeyRepository struct {
	db *gorm.DB
}

// NewDataKeyRepository creates a new DataKeyRepository.
func NewDataKeyRepository(db *gorm.DB) *DataKeyRepository {
	return &DataKeyRepository{db: db}
}

var _ repository.DataKeyRepository = (*DataKeyRepository)(nil)

func (r *DataKeyRepository) GetActive(ctx context.Context) (*models.DataEncryptionKey, error) {
	var key models.DataEncryptionKey
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		First(&key).Error
	if err != nil {
		return nil, lookupError(err, "data_encryption_key", "active")
	}
	return &key, nil
}

func (r *DataKeyRepository) Save(ctx context.Context, key *models.DataEncryptionKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		return writeError(err, "store data encryption key")
	}
	return nil
}
