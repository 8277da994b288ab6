package repository

import (
	"context"
	"time"

	"github.com/turtacn/authcore/internal/domain/models"
)

// AdminTokenRepository stores admin API token records.
type AdminTokenRepository interface {
	Create(ctx context.Context, token *models.AdminToken) error
	GetByID(ctx context.Context, id string) (*models.AdminToken, error)
	List(ctx context.Context) ([]*models.AdminToken, error)
	Deactivate(ctx context.Context, id string) error
	// RecordUsage bumps the usage counter and last-used fields.
	RecordUsage(ctx context.Context, id, ip string, at time.Time) error
}

// AuditRepository persists audit events.
type AuditRepository interface {
	Save(ctx context.Context, event *models.AuditEvent) error
	List(ctx context.Context, tenantID string, limit int) ([]*models.AuditEvent, error)
}
