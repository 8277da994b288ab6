package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/authcore/internal/domain/models"
)

// MockTenantRepository is a mock implementation of repository.TenantRepository
type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockTenantRepository) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) GetMemberRole(ctx context.Context, tenantID, userID string) (string, bool, error) {
	args := m.Called(ctx, tenantID, userID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockTenantRepository) ListTenantsForUser(ctx context.Context, userID string) ([]*models.Tenant, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tenant), args.Error(1)
}

func (m *MockTenantRepository) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	return m.Called(ctx, tenant).Error(0)
}

func (m *MockTenantRepository) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockTenantRepository) AddMember(ctx context.Context, member *models.TenantMember) error {
	return m.Called(ctx, member).Error(0)
}
