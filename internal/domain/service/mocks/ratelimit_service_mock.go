package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
)

// MockRateLimiter is a mock implementation of service.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Allow(ctx context.Context, scope constants.RateLimitScope, identifier string) (*service.RateLimitResult, error) {
	args := m.Called(ctx, scope, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RateLimitResult), args.Error(1)
}
