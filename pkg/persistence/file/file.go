// Package file provides a JSON document persistence implementation for local runs and tests.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root string
	mu   *sync.Mutex

	executions   *ExecutionRequestRepository
	resources    *ResourceRepository
	handlerInfos *ResourceHandlerInfoRepository
	schemas      *DynamicSchemaRepository
	taskResults  *TaskResultRepository
	uploads      *UploadRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.Mutex{}

	return &Persistence{
		root:         cleanRoot,
		mu:           mu,
		executions:   &ExecutionRequestRepository{docs: newDocuments[models.ExecutionRequest](cleanRoot, "execution_requests", mu)},
		resources:    &ResourceRepository{docs: newDocuments[models.Resource](cleanRoot, "resources", mu)},
		handlerInfos: &ResourceHandlerInfoRepository{docs: newDocuments[models.ResourceHandlerInfo](cleanRoot, "resource_handler_infos", mu)},
		schemas: &DynamicSchemaRepository{
			schemas: newDocuments[models.ModelSchema](cleanRoot, "model_schemas", mu),
			fields:  newDocuments[models.FieldSchema](cleanRoot, "field_schemas", mu),
		},
		taskResults: &TaskResultRepository{docs: newDocuments[models.TaskResult](cleanRoot, "task_results", mu)},
		uploads:     &UploadRepository{docs: newDocuments[models.Upload](cleanRoot, "uploads", mu)},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) ExecutionRequestRepository() persistence.ExecutionRequestRepository {
	return fp.executions
}

func (fp *Persistence) ResourceRepository() persistence.ResourceRepository {
	return fp.resources
}

func (fp *Persistence) ResourceHandlerInfoRepository() persistence.ResourceHandlerInfoRepository {
	return fp.handlerInfos
}

func (fp *Persistence) DynamicSchemaRepository() persistence.DynamicSchemaRepository {
	return fp.schemas
}

func (fp *Persistence) TaskResultRepository() persistence.TaskResultRepository {
	return fp.taskResults
}

func (fp *Persistence) UploadRepository() persistence.UploadRepository {
	return fp.uploads
}
