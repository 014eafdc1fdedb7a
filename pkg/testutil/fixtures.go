// Package testutil provides test data builders and fixture files for testing.
package testutil

import (
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/google/uuid"
)

// CreateTestExecution creates a READY import ExecutionRequest with default values that can be overridden.
func CreateTestExecution(overrides ...func(*models.ExecutionRequest)) *models.ExecutionRequest {
	now := time.Now().UTC()

	execution := &models.ExecutionRequest{
		ExecID:   uuid.New().String(),
		User:     "admin",
		FuncName: "start_import",
		Step:     "start_import",
		Status:   models.ExecutionStatusReady,
		Action:   models.ActionImport,
		InputParams: models.Params{
			models.ParamFiles: map[string]any{"base_file": "/tmp/valid.gpkg"},
		},
		OutputParams: models.Params{},
		Created:      now,
		LastUpdated:  now,
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}

// WithHandler sets the handler key driving the execution.
func WithHandler(key string) func(*models.ExecutionRequest) {
	return func(e *models.ExecutionRequest) {
		e.InputParams[models.ParamHandlerModulePath] = key
	}
}

// WithFiles replaces the staged files of the execution.
func WithFiles(files map[string]string) func(*models.ExecutionRequest) {
	return func(e *models.ExecutionRequest) {
		staged := map[string]any{}
		for role, path := range files {
			staged[role] = path
		}

		e.InputParams[models.ParamFiles] = staged
	}
}

// WithInput sets one input parameter.
func WithInput(key string, value any) func(*models.ExecutionRequest) {
	return func(e *models.ExecutionRequest) {
		e.InputParams[key] = value
	}
}

// WithStatus sets the execution status.
func WithStatus(status models.ExecutionStatus) func(*models.ExecutionRequest) {
	return func(e *models.ExecutionRequest) {
		e.Status = status
	}
}

// CreateTestResource creates a vector dataset resource owned by admin.
func CreateTestResource(overrides ...func(*models.Resource)) *models.Resource {
	now := time.Now().UTC()

	resource := &models.Resource{
		ID:           uuid.New().String(),
		Alternate:    "geonode:roads",
		Name:         "roads",
		Title:        "roads",
		Owner:        "admin",
		Workspace:    "geonode",
		Store:        "geonode_data",
		ResourceType: models.ResourceTypeDataset,
		Subtype:      models.SubtypeVector,
		SourceType:   models.SourceTypeLocal,
		SRID:         "EPSG:4326",
		Created:      now,
		LastUpdated:  now,
	}

	for _, override := range overrides {
		override(resource)
	}

	return resource
}

// WithAlternate sets the alternate and the name derived from it.
func WithAlternate(alternate string) func(*models.Resource) {
	return func(r *models.Resource) {
		r.Alternate = alternate
		r.Name = r.LayerName()
		r.Title = r.LayerName()
	}
}

// WithOwner sets the owner of the resource.
func WithOwner(owner string) func(*models.Resource) {
	return func(r *models.Resource) {
		r.Owner = owner
	}
}
