package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/repository"
)

// MockStore is a mock implementation of repository.ApplicationStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Create(ctx context.Context, app *domain.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockStore) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, filter repository.ListFilter) ([]*domain.Application, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Application), args.Get(1).(int64), args.Error(2)
}

func (m *MockStore) ApplyTransition(ctx context.Context, app *domain.Application, expected domain.Status) error {
	args := m.Called(ctx, app, expected)
	return args.Error(0)
}
