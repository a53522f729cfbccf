package mocks

import (
	"context"

	"github.com/dukex/actflow/pkg/store"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) (*store.Object, error) {
	args := m.Called(ctx, key)

	obj, _ := args.Get(0).(*store.Object)

	return obj, args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, key string, value []byte, opts ...store.PutOption) (store.ETag, error) {
	args := m.Called(ctx, key, value, store.ApplyPutOptions(opts...))

	return store.ETag(args.String(0)), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)

	return args.Error(0)
}

func (m *MockStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)

	keys, _ := args.Get(0).([]string)

	return keys, args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
