package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/pkg/errors"
)

// ClientRepository is the gorm implementation of repository.OAuthClientRepository.
type ClientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

var _ repository.OAuthClientRepository = (*ClientRepository)(nil)

func (r *ClientRepository) Create(ctx context.Context, client *models.OAuthClient) error {
	if err := r.db.WithContext(ctx).Create(client).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.ErrServerError("client_id already exists").WithCause(err)
		}
		return writeError(err, "store OAuth client")
	}
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, clientID string) (*models.OAuthClient, error) {
	var client models.OAuthClient
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&client).Error; err != nil {
		return nil, lookupError(err, "oauth_client", clientID)
	}
	return &client, nil
}

func (r *ClientRepository) Revoke(ctx context.Context, clientID string) error {
	res := r.db.WithContext(ctx).Model(&models.OAuthClient{}).Where("client_id = ?", clientID).Update("revoked", true)
	if res.Error != nil {
		return writeError(res.Error, "revoke OAuth client")
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound("oauth_client", clientID)
	}
	return nil
}

// CodeRepository is the database-backed repository.AuthorizationCodeStore.
type CodeRepository struct {
	db *gorm.DB
}

// NewCodeRepository creates a new CodeRepository.
func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

var _ repository.AuthorizationCodeStore = (*CodeRepository)(nil)

func (r *CodeRepository) Save(ctx context.Context, code *models.AuthorizationCode) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		return writeError(err, "store authorization code")
	}
	return nil
}

func (r *CodeRepository) Get(ctx context.Context, codeHash string) (*models.AuthorizationCode, error) {
	var code models.AuthorizationCode
	if err := r.db.WithContext(ctx).Where("code_hash = ?", codeHash).First(&code).Error; err != nil {
		return nil, lookupError(err, "authorization_code", "")
	}
	return &code, nil
}

// Consume is a single conditional UPDATE; the affected row count decides the winner.
func (r *CodeRepository) Consume(ctx context.Context, codeHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.AuthorizationCode{}).
		Where("code_hash = ? AND consumed = ? AND expires_at > ?", codeHash, false, now).
		Updates(map[string]interface{}{"consumed": true, "consumed_at": now})
	if res.Error != nil {
		return writeError(res.Error, "consume authorization code")
	}
	if res.RowsAffected != 1 {
		return errors.ErrInvalidGrant("authorization code is invalid, expired or already used")
	}
	return nil
}

func (r *CodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.AuthorizationCode{})
	if res.Error != nil {
		return 0, writeError(res.Error, "delete expired authorization codes")
	}
	return res.RowsAffected, nil
}

// RefreshTokenRepository is the gorm implementation of repository.RefreshTokenStore.
type RefreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository creates a new RefreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

var _ repository.RefreshTokenStore = (*RefreshTokenRepository)(nil)

func (r *RefreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return writeError(err, "store refresh token")
	}
	return nil
}

func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash, clientID string, now time.Time) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND client_id = ? AND revoked = ? AND expires_at > ?", tokenHash, clientID, false, now).
			Updates(map[string]interface{}{"revoked": true, "revoked_at": now})
		if res.Error != nil {
			return writeError(res.Error, "consume refresh token")
		}
		if res.RowsAffected != 1 {
			return errors.ErrInvalidGrant("refresh token is invalid, expired or already used")
		}
		if err := tx.Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
			return lookupError(err, "refresh_token", "")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash, clientID string, now time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND client_id = ? AND revoked = ?", tokenHash, clientID, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
	if err != nil {
		return writeError(err, "revoke refresh token")
	}
	return nil
}
