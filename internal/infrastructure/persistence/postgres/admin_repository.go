package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
	"github.com/turtacn/authcore/pkg/errors"
)

// AdminTokenRepository is the gorm implementation of repository.AdminTokenRepository.
type AdminTokenRepository struct {
	db *gorm.DB
}

// NewAdminTokenRepository creates a new AdminTokenRepository.
func NewAdminTokenRepository(db *gorm.DB) *AdminTokenRepository {
	return &AdminTokenRepository{db: db}
}

var _ repository.AdminTokenRepository = (*AdminTokenRepository)(nil)

func (r *AdminTokenRepository) Create(ctx context.Context, token *models.AdminToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return writeError(err, "store admin token")
	}
	return nil
}

func (r *AdminTokenRepository) GetByID(ctx context.Context, id string) (*models.AdminToken, error) {
	var token models.AdminToken
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&token).Error; err != nil {
		return nil, lookupError(err, "admin_token", id)
	}
	return &token, nil
}

func (r *AdminTokenRepository) List(ctx context.Context) ([]*models.AdminToken, error) {
	var tokens []*models.AdminToken
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&tokens).Error; err != nil {
		return nil, lookupError(err, "admin_token", "")
	}
	return tokens, nil
}

func (r *AdminTokenRepository) Deactivate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.AdminToken{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return writeError(res.Error, "deactivate admin token")
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound("admin_token", id)
	}
	return nil
}

func (r *AdminTokenRepository) RecordUsage(ctx context.Context, id, ip string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.AdminToken{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_used_at": at,
		"last_used_ip": ip,
		"usage_count":  gorm.Expr("usage_count + 1"),
	}).Error
	if err != nil {
		return writeError(err, "record admin token usage")
	}
	return nil
}

// AuditRepository is the gorm implementation of repository.AuditRepository.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Save(ctx context.Context, event *models.AuditEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return writeError(err, "store audit event")
	}
	return nil
}

// List returns the newest events first. An empty tenantID lists every tenant.
func (r *AuditRepository) List(ctx context.Context, tenantID string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var events []*models.AuditEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, lookupError(err, "audit_event", "")
	}
	return events, nil
}
