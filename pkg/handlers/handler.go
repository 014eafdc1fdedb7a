// Package handlers defines the contract every resource-kind handler implements and the helpers they share.
package handlers

import (
	"context"

	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

// ExtensionConfig describes the files a handler accepts, as listed to clients.
type ExtensionConfig struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Format   string   `json:"format"`
	Ext      []string `json:"ext"`
	Requires []string `json:"requires,omitempty"`
	Optional []string `json:"optional,omitempty"`
}

// Handler is the strategy driving the pipeline for one resource kind. Only its Key crosses the
// queue boundary; workers resolve the live handler again from the registry.
type Handler interface {
	Key() string
	// Priority orders handlers during resolution, highest first.
	Priority() int
	// CanHandle is a pure predicate on the request payload.
	CanHandle(payload Payload) bool
	// IsValid returns a *ValidationError when files cannot be imported by user.
	IsValid(ctx context.Context, files map[string]string, user, executionID string) error
	// ExtractParamsFromData splits payload into execution input params and request-local values.
	ExtractParamsFromData(payload Payload, action models.Action) (extracted, remaining Payload)
	Actions() map[models.Action][]string
	// TaskList returns ErrNotSupported for actions the handler does not declare.
	TaskList(action models.Action) ([]string, error)
	ExtensionConfig() ExtensionConfig

	ImportResource(ctx context.Context, files map[string]string, executionID string) error
	// CreateResource upserts the catalog resource keyed by alternate.
	CreateResource(ctx context.Context, layerName, alternate, executionID string) (*models.Resource, error)
	CreateResourceHandlerInfo(ctx context.Context, resource *models.Resource, executionID string, kwargs models.Params) error
	CreateErrorLog(err error, taskName, alternate string) string
}

// PublishTarget is one layer the publisher registers on the map server.
type PublishTarget struct {
	Name       string `json:"name"`
	CRS        string `json:"crs"`
	RasterPath string `json:"raster_path,omitempty"`
}

// Publishable handlers can register their layers on the map server.
type Publishable interface {
	ExtractResourceToPublish(ctx context.Context, files map[string]string, action models.Action, layerName, alternate string, kwargs models.Params) ([]PublishTarget, error)
	PublishResources(ctx context.Context, targets []PublishTarget, client mapserver.Client, store *mapserver.Store, workspace string) error
}

// Copier customises how the catalog entry of a resource is duplicated.
type Copier interface {
	CopyResource(ctx context.Context, original *models.Resource, execution *models.ExecutionRequest, newAlternate string, kwargs models.Params) (*models.Resource, error)
}

// RasterCopier duplicates the original raster file of a resource and returns the new location.
type RasterCopier interface {
	CopyOriginalFile(ctx context.Context, original *models.Resource, executionID string) (string, error)
}

// OgrCommandBuilder returns the ogr2ogr arguments importing one layer.
type OgrCommandBuilder interface {
	Ogr2OgrArgs(ctx context.Context, files map[string]string, originalName string, overwrite bool, alternate string) ([]string, error)
}

// Compensator undoes the side effects of one step for instance.
type Compensator func(ctx context.Context, executionID, instance string, kwargs models.Params) error

// RollbackHandler maps a step to the action undoing it.
type RollbackHandler interface {
	Compensators() map[string]Compensator
}

// ResourceDeleter cleans up the secondary storage of a resource being deleted.
type ResourceDeleter interface {
	DeleteResource(ctx context.Context, resource *models.Resource) error
}

// LastStepPerformer runs once an execution finished successfully.
type LastStepPerformer interface {
	PerformLastStep(ctx context.Context, executionID string) error
}

// MetadataAttacher lets metadata handlers delegate the attachment to the handler owning the resource.
type MetadataAttacher interface {
	AttachXML(ctx context.Context, resource *models.Resource, path string) error
	AttachSLD(ctx context.Context, resource *models.Resource, path string) error
}

// Executions is the part of the orchestrator handlers call back into.
type Executions interface {
	GetExecution(ctx context.Context, executionID string) (*models.ExecutionRequest, error)
	UpdateExecutionRequestStatus(ctx context.Context, executionID string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error)
	EvaluateExecutionProgress(ctx context.Context, executionID, handlerKey string) error
}

// Loader resolves a persisted handler key.
type Loader interface {
	Load(key string) (Handler, error)
}
