// Package datastore is the entry point of the import_resource task into the handler.
package datastore

import (
	"context"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
)

// Manager validates and starts the import of the staged files of one execution.
type Manager struct {
	files     map[string]string
	handler   handlers.Handler
	execution *models.ExecutionRequest
}

func New(handler handlers.Handler, execution *models.ExecutionRequest) *Manager {
	return &Manager{files: execution.Files(), handler: handler, execution: execution}
}

func (m *Manager) InputIsValid(ctx context.Context) error {
	return m.handler.IsValid(ctx, m.files, m.execution.User, m.execution.ExecID)
}

func (m *Manager) StartImport(ctx context.Context) error {
	return m.handler.ImportResource(ctx, m.files, m.execution.ExecID)
}
