package repository

import (
	"context"

	"github.com/turtacn/authcore/internal/domain/models"
)

// TenantRepository defines the interface for interacting with tenant and membership storage.
// Every membership query is filtered by tenant_id.
type TenantRepository interface {
	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// GetTenant retrieves a tenant by id.
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)

	// GetMemberRole returns the stored role string and whether the user is a member of the tenant.
	GetMemberRole(ctx context.Context, tenantID, userID string) (role string, ok bool, err error)

	// ListTenantsForUser returns the tenants the user belongs to, oldest membership first.
	ListTenantsForUser(ctx context.Context, userID string) ([]*models.Tenant, error)

	// CreateTenant persists a new tenant.
	CreateTenant(ctx context.Context, tenant *models.Tenant) error

	// CreateUser persists a new user.
	CreateUser(ctx context.Context, user *models.User) error

	// AddMember adds or updates a user's role in a tenant.
	AddMember(ctx context.Context, member *models.TenantMember) error
}

// TenantCredentialRepository stores per-tenant upstream provider credentials.
type TenantCredentialRepository interface {
	// Upsert inserts or replaces the credential for (tenant, provider).
	Upsert(ctx context.Context, cred *models.TenantOAuthCredential) error
	// Get returns the credential or a not_found error.
	Get(ctx context.Context, tenantID, provider string) (*models.TenantOAuthCredential, error)
	// List returns every credential of the tenant.
	List(ctx context.Context, tenantID string) ([]*models.TenantOAuthCredential, error)
}
