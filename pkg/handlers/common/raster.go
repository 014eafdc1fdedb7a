package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/taskqueue"
)

// RasterInspector reads the summary of a raster file.
type RasterInspector interface {
	Inspect(ctx context.Context, path string) (*dataset.Raster, error)
}

// Raster publishes a single raster file as a coverage.
type Raster struct {
	Base

	inspector RasterInspector
}

func NewRaster(base Base, inspector RasterInspector) Raster {
	return Raster{Base: base, inspector: inspector}
}

// IsValid checks the upload quota, then that the file exists and has a single extension dot.
func (r *Raster) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := r.CheckUploadLimit(ctx, user, executionID)
	if err != nil {
		return err
	}

	return CheckBaseFile(handlers.ValidationGeoTIFF, files, true)
}

// ImportResource needs no conversion: the raster goes straight to the next step.
func (r *Raster) ImportResource(ctx context.Context, files map[string]string, executionID string) error {
	execution, err := r.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	name := handlers.FixupName(handlers.Stem(files["base_file"]))

	existing, err := r.FindExisting(ctx, execution.User, name)
	if err != nil {
		return err
	}

	if !ShouldBeImported(existing, execution.SkipExisting()) {
		r.log.InfoContext(ctx, "Raster already exists, skipping", "execution_id", executionID, "layer", name)

		return r.Executions.EvaluateExecutionProgress(ctx, executionID, r.key)
	}

	alternate, err := r.ResolveAlternate(ctx, existing, name, executionID, execution.OverrideExisting())
	if err != nil {
		return err
	}

	_, err = r.Dispatcher.Dispatch(ctx, taskqueue.NewSignature(handlers.TaskImportNextStep, executionID, r.key, handlers.TaskImportResource, name, alternate))

	return err
}

func (r *Raster) CreateResource(ctx context.Context, layerName, alternate, executionID string) (*models.Resource, error) {
	execution, err := r.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	files := execution.Files()

	resource := &models.Resource{
		Alternate:  r.Qualify(alternate),
		Name:       layerOf(alternate),
		Title:      layerName,
		Owner:      execution.User,
		Workspace:  r.Workspace,
		Store:      layerOf(alternate),
		Subtype:    models.SubtypeRaster,
		SourceType: models.SourceTypeLocal,
		Files:      StoredFiles(execution),
	}

	if len(resource.Files) == 0 && files["base_file"] != "" {
		resource.Files = []string{files["base_file"]}
	}

	raster, err := r.inspector.Inspect(ctx, files["base_file"])
	if err != nil {
		r.log.WarnContext(ctx, "Failed to read the raster SRS", "layer", layerName, "error", err)
	} else {
		resource.SRID = raster.SRS
	}

	return r.Register(ctx, resource, files)
}

// ExtractResourceToPublish returns the coverage to create, or nothing when the raster has no SRS.
func (r *Raster) ExtractResourceToPublish(ctx context.Context, files map[string]string, action models.Action, _, alternate string, kwargs models.Params) ([]handlers.PublishTarget, error) {
	if action == models.ActionCopy {
		targets, err := r.copyTargets(ctx, alternate, kwargs)
		for i := range targets {
			targets[i].RasterPath = kwargs.String(handlers.KwargNewFileLocation)
		}

		return targets, err
	}

	raster, err := r.inspector.Inspect(ctx, files["base_file"])
	if err != nil {
		return nil, err
	}

	if raster.SRS == "" {
		return nil, nil
	}

	return []handlers.PublishTarget{{Name: layerOf(alternate), CRS: raster.SRS, RasterPath: files["base_file"]}}, nil
}

func (r *Raster) PublishResources(ctx context.Context, targets []handlers.PublishTarget, client mapserver.Client, _ *mapserver.Store, workspace string) error {
	for _, t := range targets {
		if t.RasterPath == "" {
			return fmt.Errorf("no raster file to publish for %s", t.Name)
		}

		err := client.PublishCoverage(ctx, workspace, t.Name, t.RasterPath, t.CRS, false)
		if err != nil {
			return err
		}

		r.log.InfoContext(ctx, "Coverage published", "layer", t.Name, "crs", t.CRS)
	}

	return nil
}

// CopyOriginalFile copies the files of original into the storage area of the execution and returns the
// new location of the raster.
func (r *Raster) CopyOriginalFile(ctx context.Context, original *models.Resource, executionID string) (string, error) {
	if len(original.Files) == 0 {
		return "", fmt.Errorf("resource %s has no file to copy", original.Alternate)
	}

	copied, err := r.Storage.CopyFiles(ctx, executionID, original.Files...)
	if err != nil {
		return "", err
	}

	for i, src := range original.Files {
		if handlers.Extension(src) == "tif" || handlers.Extension(src) == "tiff" {
			return copied[i], nil
		}
	}

	return copied[0], nil
}

// CopyResource points the copied resource to the copied raster.
func (r *Raster) CopyResource(ctx context.Context, original *models.Resource, execution *models.ExecutionRequest, newAlternate string, kwargs models.Params) (*models.Resource, error) {
	copied, err := r.Catalog.Copy(ctx, original, execution.User, r.Qualify(newAlternate), execution.InputParams.String(models.ParamTitle))
	if err != nil {
		return nil, err
	}

	copied.Store = layerOf(newAlternate)
	if location := kwargs.String(handlers.KwargNewFileLocation); location != "" {
		copied.Files = []string{location}
	}

	return r.Catalog.Finalize(ctx, copied, nil)
}

func (r *Raster) Compensators() map[string]handlers.Compensator {
	return map[string]handlers.Compensator{
		handlers.TaskImportResource:  r.NothingToUndo,
		handlers.TaskPublishResource: r.Unpublish,
		handlers.TaskCreateResource:  r.DeleteCatalogResource,
		handlers.TaskCopyRasterFile:  r.removeCopiedFile,
		handlers.TaskCopyResource:    r.DeleteCatalogResource,
	}
}

func (r *Raster) removeCopiedFile(_ context.Context, _, _ string, kwargs models.Params) error {
	location := kwargs.String(handlers.KwargNewFileLocation)
	if location == "" {
		return nil
	}

	return r.Storage.Remove(location)
}

func (r *Raster) DeleteResource(ctx context.Context, resource *models.Resource) error {
	err := r.MapServer.DeleteLayer(ctx, resource.WorkspaceName(), resource.LayerName())
	if errors.Is(err, mapserver.ErrNotFound) {
		return nil
	}

	return err
}

// PerformLastStep records the detail url of the produced resource and purges the task results.
func (r *Raster) PerformLastStep(ctx context.Context, executionID string) error {
	infos, err := r.HandlerInfos.ListByExecution(ctx, executionID)
	if err != nil {
		return err
	}

	for _, info := range infos {
		resource, err := r.Resources.GetByID(ctx, info.ResourceID)
		if err != nil {
			return err
		}

		_, err = r.Executions.UpdateExecutionRequestStatus(ctx, executionID, persistence.ExecutionUpdate{
			OutputParams: map[string]any{models.OutputDetailURL: resource.DetailURL},
		})
		if err != nil {
			return err
		}
	}

	return r.DeleteTaskResults(ctx, executionID)
}
