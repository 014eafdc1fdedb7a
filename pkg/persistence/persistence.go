// Package persistence provides the storage abstraction for execution requests, catalog resources and task results.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
)

// Persistence groups every repository backing the import pipeline.
type Persistence interface {
	ExecutionRequestRepository() ExecutionRequestRepository
	ResourceRepository() ResourceRepository
	ResourceHandlerInfoRepository() ResourceHandlerInfoRepository
	DynamicSchemaRepository() DynamicSchemaRepository
	TaskResultRepository() TaskResultRepository
	UploadRepository() UploadRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExecutionRequestRepository stores the workflow ledger.
type ExecutionRequestRepository interface {
	Save(ctx context.Context, execution *models.ExecutionRequest) error
	GetByID(ctx context.Context, execID string) (*models.ExecutionRequest, error)
	// Update merges the non-nil fields of update into the stored record and returns the result.
	Update(ctx context.Context, execID string, update ExecutionUpdate) (*models.ExecutionRequest, error)
	// CountActiveByUser counts READY and RUNNING executions of user, ignoring excludeID.
	CountActiveByUser(ctx context.Context, user, excludeID string) (int, error)
}

type ResourceRepository interface {
	Save(ctx context.Context, resource *models.Resource) error
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	GetByAlternate(ctx context.Context, alternate string) (*models.Resource, error)
	FindByOwnerAndAlternate(ctx context.Context, owner, alternate string) (*models.Resource, error)
	// SearchByAlternateOrTitle matches term exactly against the alternate, the layer name or the title.
	SearchByAlternateOrTitle(ctx context.Context, term string) ([]*models.Resource, error)
	SetDirtyState(ctx context.Context, id string, dirty bool) error
	Delete(ctx context.Context, id string) error
}

type ResourceHandlerInfoRepository interface {
	Save(ctx context.Context, info *models.ResourceHandlerInfo) error
	ListByResource(ctx context.Context, resourceID string) ([]*models.ResourceHandlerInfo, error)
	ListByExecution(ctx context.Context, execID string) ([]*models.ResourceHandlerInfo, error)
	DeleteByResource(ctx context.Context, resourceID string) error
}

// DynamicSchemaRepository stores the table definitions produced for vector layers.
type DynamicSchemaRepository interface {
	SaveSchema(ctx context.Context, schema *models.ModelSchema) error
	GetSchemaByID(ctx context.Context, id string) (*models.ModelSchema, error)
	GetSchemaByName(ctx context.Context, name string) (*models.ModelSchema, error)
	// DeleteSchema removes the schema together with its fields.
	DeleteSchema(ctx context.Context, id string) error
	CreateFields(ctx context.Context, fields []*models.FieldSchema) error
	UpdateField(ctx context.Context, field *models.FieldSchema) error
	GetField(ctx context.Context, schemaID, name string) (*models.FieldSchema, error)
	ListFields(ctx context.Context, schemaID string) ([]*models.FieldSchema, error)
}

// TaskResultRepository is the result backend of the task queue.
type TaskResultRepository interface {
	SaveResult(ctx context.Context, result *models.TaskResult) error
	GetResult(ctx context.Context, taskID string) (*models.TaskResult, error)
	ListByExecution(ctx context.Context, execID string) ([]*models.TaskResult, error)
	DeleteByExecution(ctx context.Context, execID string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int, error)
}

// UploadRepository stores the legacy progress records.
type UploadRepository interface {
	Save(ctx context.Context, upload *models.Upload) error
	GetByExecution(ctx context.Context, execID string) (*models.Upload, error)
	UpdateByExecution(ctx context.Context, execID, state string, complete bool) error
	DeleteByExecution(ctx context.Context, execID string) error
}

// ExecutionUpdate lists the fields to merge into an execution request. Nil fields are left untouched
// and the parameter maps are merged key by key.
type ExecutionUpdate struct {
	Status       *models.ExecutionStatus
	Step         *string
	FuncName     *string
	Log          *string
	Name         *string
	ResourceID   *string
	Finished     *time.Time
	InputParams  map[string]any
	OutputParams map[string]any
}

// Apply merges the update into execution. A status change that is not a legal transition is skipped
// and reported through the returned flag; the other fields are still applied.
func (u ExecutionUpdate) Apply(execution *models.ExecutionRequest, now time.Time) (statusApplied bool) {
	statusApplied = true

	if u.Status != nil {
		if models.CanTransition(execution.Status, *u.Status) {
			execution.Status = *u.Status
		} else {
			statusApplied = false
		}
	}

	if u.Step != nil {
		execution.Step = *u.Step
	}

	if u.FuncName != nil {
		execution.FuncName = *u.FuncName
	}

	if u.Log != nil {
		execution.Log = *u.Log
	}

	if u.Name != nil {
		execution.Name = *u.Name
	}

	if u.ResourceID != nil {
		execution.ResourceID = *u.ResourceID
	}

	if u.Finished != nil {
		finished := *u.Finished
		execution.Finished = &finished
	}

	if len(u.InputParams) > 0 {
		execution.InputParams = execution.InputParams.Merge(u.InputParams)
	}

	if len(u.OutputParams) > 0 {
		execution.OutputParams = execution.OutputParams.Merge(u.OutputParams)
	}

	execution.LastUpdated = now

	return statusApplied
}

// Ptr returns a pointer to v, handy for building an ExecutionUpdate.
func Ptr[T any](v T) *T {
	return &v
}
