package mocks

import (
	"context"

	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/stretchr/testify/mock"
)

// MockMapServer is a mock implementation of mapserver.Client.
type MockMapServer struct {
	mock.Mock
}

func (m *MockMapServer) GetStore(ctx context.Context, workspace, name string) (*mapserver.Store, error) {
	args := m.Called(ctx, workspace, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*mapserver.Store), args.Error(1)
}

func (m *MockMapServer) CreateDatastore(ctx context.Context, workspace, name string, params map[string]string) (*mapserver.Store, error) {
	args := m.Called(ctx, workspace, name, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*mapserver.Store), args.Error(1)
}

func (m *MockMapServer) PublishFeatureType(ctx context.Context, store *mapserver.Store, name, srs string) error {
	return m.Called(ctx, store, name, srs).Error(0)
}

func (m *MockMapServer) PublishCoverage(ctx context.Context, workspace, name, path, srs string, overwrite bool) error {
	return m.Called(ctx, workspace, name, path, srs, overwrite).Error(0)
}

func (m *MockMapServer) DeleteLayer(ctx context.Context, workspace, name string) error {
	return m.Called(ctx, workspace, name).Error(0)
}
