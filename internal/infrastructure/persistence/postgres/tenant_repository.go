package postgres

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/repository"
)

// TenantRepository is the gorm implementation of repository.TenantRepository.
type TenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

var _ repository.TenantRepository = (*TenantRepository)(nil)

func (r *TenantRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, lookupError(err, "user", userID)
	}
	return &user, nil
}

func (r *TenantRepository) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error; err != nil {
		return nil, lookupError(err, "tenant", tenantID)
	}
	return &tenant, nil
}

func (r *TenantRepository) GetMemberRole(ctx context.Context, tenantID, userID string) (string, bool, error) {
	var member models.TenantMember
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&member).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, lookupError(err, "tenant_member", userID)
	}
	return member.Role, true, nil
}

func (r *TenantRepository) ListTenantsForUser(ctx context.Context, userID string) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.db.WithContext(ctx).
		Joins("JOIN tenant_members ON tenant_members.tenant_id = tenants.id").
		Where("tenant_members.user_id = ?", userID).
		Order("tenant_members.created_at ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, lookupError(err, "tenant", "")
	}
	return tenants, nil
}

func (r *TenantRepository) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return writeError(err, "create tenant")
	}
	return nil
}

func (r *TenantRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return writeError(err, "create user")
	}
	return nil
}

func (r *TenantRepository) AddMember(ctx context.Context, member *models.TenantMember) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(member).Error
	if err != nil {
		return writeError(err, "add tenant member")
	}
	return nil
}

// CredentialRepository is the gorm implementation of repository.TenantCredentialRepository.
type CredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

var _ repository.TenantCredentialRepository = (*CredentialRepository)(nil)

func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.TenantOAuthCredential) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "encrypted_secret", "redirect_uri", "scopes", "configured_by", "updated_at"}),
	}).Create(cred).Error
	if err != nil {
		return writeError(err, "store tenant credential")
	}
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, tenantID, provider string) (*models.TenantOAuthCredential, error) {
	var cred models.TenantOAuthCredential
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		First(&cred).Error
	if err != nil {
		return nil, lookupError(err, "tenant_oauth_credential", provider)
	}
	return &cred, nil
}

func (r *CredentialRepository) List(ctx context.Context, tenantID string) ([]*models.TenantOAuthCredential, error) {
	var creds []*models.TenantOAuthCredential
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("provider ASC").
		Find(&creds).Error
	if err != nil {
		return nil, lookupError(err, "tenant_oauth_credential", "")
	}
	return creds, nil
}
