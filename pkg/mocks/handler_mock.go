// Package mocks holds testify doubles of the importer collaborators.
package mocks

import (
	"context"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockHandler is a mock implementation of handlers.Handler that also publishes, rolls back and
// deletes resources.
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) Key() string {
	return m.Called().String(0)
}

func (m *MockHandler) Priority() int {
	return m.Called().Int(0)
}

func (m *MockHandler) CanHandle(payload handlers.Payload) bool {
	return m.Called(payload).Bool(0)
}

func (m *MockHandler) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	return m.Called(ctx, files, user, executionID).Error(0)
}

func (m *MockHandler) ExtractParamsFromData(payload handlers.Payload, action models.Action) (handlers.Payload, handlers.Payload) {
	args := m.Called(payload, action)

	return args.Get(0).(handlers.Payload), args.Get(1).(handlers.Payload)
}

func (m *MockHandler) Actions() map[models.Action][]string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(map[models.Action][]string)
}

func (m *MockHandler) TaskList(action models.Action) ([]string, error) {
	args := m.Called(action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockHandler) ExtensionConfig() handlers.ExtensionConfig {
	return m.Called().Get(0).(handlers.ExtensionConfig)
}

func (m *MockHandler) ImportResource(ctx context.Context, files map[string]string, executionID string) error {
	return m.Called(ctx, files, executionID).Error(0)
}

func (m *MockHandler) CreateResource(ctx context.Context, layerName, alternate, executionID string) (*models.Resource, error) {
	args := m.Called(ctx, layerName, alternate, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Resource), args.Error(1)
}

func (m *MockHandler) CreateResourceHandlerInfo(ctx context.Context, resource *models.Resource, executionID string, kwargs models.Params) error {
	return m.Called(ctx, resource, executionID, kwargs).Error(0)
}

func (m *MockHandler) CreateErrorLog(err error, taskName, alternate string) string {
	return m.Called(err, taskName, alternate).String(0)
}

func (m *MockHandler) ExtractResourceToPublish(ctx context.Context, files map[string]string, action models.Action, layerName, alternate string, kwargs models.Params) ([]handlers.PublishTarget, error) {
	args := m.Called(ctx, files, action, layerName, alternate, kwargs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]handlers.PublishTarget), args.Error(1)
}

func (m *MockHandler) PublishResources(ctx context.Context, targets []handlers.PublishTarget, client mapserver.Client, store *mapserver.Store, workspace string) error {
	return m.Called(ctx, targets, client, store, workspace).Error(0)
}

func (m *MockHandler) Compensators() map[string]handlers.Compensator {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(map[string]handlers.Compensator)
}

func (m *MockHandler) DeleteResource(ctx context.Context, resource *models.Resource) error {
	return m.Called(ctx, resource).Error(0)
}

func (m *MockHandler) PerformLastStep(ctx context.Context, executionID string) error {
	return m.Called(ctx, executionID).Error(0)
}
