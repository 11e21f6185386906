package mocks

import (
	"context"
	"time"

	"github.com/salonkit/workflowd/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockDirectory is a mock implementation of directory.Directory interface.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindCustomersByGradeOrTag(ctx context.Context, shopID string, grades, tags []string) ([]string, error) {
	args := m.Called(ctx, shopID, grades, tags)

	return ids(args)
}

func (m *MockDirectory) FindDormantCustomers(ctx context.Context, shopID string, months int) ([]string, error) {
	args := m.Called(ctx, shopID, months)

	return ids(args)
}

func (m *MockDirectory) FindRecentMessageRecipients(ctx context.Context, shopID string, days int) ([]string, error) {
	args := m.Called(ctx, shopID, days)

	return ids(args)
}

func (m *MockDirectory) FindActiveCustomers(ctx context.Context, shopID string) ([]string, error) {
	args := m.Called(ctx, shopID)

	return ids(args)
}

func (m *MockDirectory) FindCustomersLastVisitedBetween(ctx context.Context, shopID string, from, to time.Time) ([]string, error) {
	args := m.Called(ctx, shopID, from, to)

	return ids(args)
}

func ids(args mock.Arguments) ([]string, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

// MockDispatcher is a mock implementation of dispatch.Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(ctx context.Context, request models.DispatchRequest) error {
	args := m.Called(ctx, request)

	return args.Error(0)
}
