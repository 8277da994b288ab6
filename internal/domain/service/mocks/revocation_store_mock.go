package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRevocationStore struct {
	mock.Mock
}

func (m *MockRevocationStore) Revoke(ctx context.Context, jti string, until time.Time) error {
	args := m.Called(ctx, jti, until)
	return args.Error(0)
}

func (m *MockRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}
