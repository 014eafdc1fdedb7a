package common

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukex/geoimporter/pkg/converter"
	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/dynamicschema"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"go.uber.org/multierr"
)

// Vector converts every layer of a vector source into a datastore table, publishes it and registers it.
type Vector struct {
	Base

	kind      handlers.ValidationKind
	inspector dataset.Inspector
	// promote rewrites geometry names for drivers that need homogeneous multi geometry columns.
	promote func(string) string
}

func NewVector(base Base, kind handlers.ValidationKind, inspector dataset.Inspector, promote func(string) string) Vector {
	return Vector{Base: base, kind: kind, inspector: inspector, promote: promote}
}

func (v *Vector) Inspector() dataset.Inspector {
	return v.inspector
}

// IsValid checks the upload quota and that the base file can be read.
func (v *Vector) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := v.CheckUploadLimit(ctx, user, executionID)
	if err != nil {
		return err
	}

	return CheckBaseFile(v.kind, files, false)
}

// ImportResource fans every layer out into a chord of field batches plus one ogr2ogr run, joined by
// import_next_step. Layers without geometry and layers the user asked to skip are ignored.
func (v *Vector) ImportResource(ctx context.Context, files map[string]string, executionID string) error {
	execution, err := v.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	layers, err := v.inspector.Layers(ctx, files["base_file"])
	if err != nil {
		return err
	}

	if len(layers) == 0 {
		return dataset.ErrNoLayers
	}

	_, err = v.Executions.UpdateExecutionRequestStatus(ctx, executionID, persistence.ExecutionUpdate{
		InputParams: map[string]any{models.ParamTotalLayers: len(layers)},
	})
	if err != nil {
		return err
	}

	dispatched := 0

	for _, layer := range layers {
		if !layer.HasGeometry() {
			v.log.InfoContext(ctx, "Layer without geometry, skipping", "execution_id", executionID, "layer", layer.Name)

			continue
		}

		name := handlers.FixupName(layer.Name)

		existing, err := v.FindExisting(ctx, execution.User, name)
		if err != nil {
			return err
		}

		if !ShouldBeImported(existing, execution.SkipExisting()) {
			v.log.InfoContext(ctx, "Layer already exists, skipping", "execution_id", executionID, "layer", name)

			continue
		}

		alternate, err := v.ResolveAlternate(ctx, existing, name, executionID, execution.OverrideExisting())
		if err != nil {
			return err
		}

		overwrite := existing != nil && execution.OverrideExisting()

		err = v.dispatchLayer(ctx, executionID, layer, name, alternate, overwrite)
		if err != nil {
			return err
		}

		dispatched++
	}

	if dispatched == 0 {
		v.log.InfoContext(ctx, "No layer to import", "execution_id", executionID)

		return v.Executions.EvaluateExecutionProgress(ctx, executionID, v.key)
	}

	return nil
}

func (v *Vector) dispatchLayer(ctx context.Context, executionID string, layer dataset.Layer, name, alternate string, overwrite bool) error {
	schema, err := v.Schemas.EnsureSchema(ctx, alternate)
	if err != nil {
		return err
	}

	errback := taskqueue.NewSignature(handlers.TaskDynamicModelErrorCallback)
	overwriteArg := strconv.FormatBool(overwrite)

	var header []taskqueue.Signature

	for _, batch := range dynamicschema.Chunk(dynamicschema.FieldSpecs(layer, v.promote), dynamicschema.BatchSize) {
		header = append(header, taskqueue.NewSignature(handlers.TaskCreateDynamicStructure, executionID, schema.ID, overwriteArg, alternate).
			WithKwargs(map[string]any{handlers.KwargFields: batch, models.ParamHandlerModulePath: v.key}).
			OnError(errback))
	}

	header = append(header, taskqueue.NewSignature(handlers.TaskImportWithOgr2ogr, executionID, layer.Name, v.key, overwriteArg, alternate).OnError(errback))

	body := taskqueue.NewSignature(handlers.TaskImportNextStep, executionID, v.key, handlers.TaskImportResource, name, alternate)

	err = v.Dispatcher.DispatchChord(ctx, taskqueue.Chord{Header: header, Body: body})
	if err != nil {
		if dropErr := v.Schemas.Drop(ctx, alternate); dropErr != nil {
			v.log.ErrorContext(ctx, "Failed to drop dynamic schema", "alternate", alternate, "error", dropErr)
		}

		return fmt.Errorf("failed to dispatch the import of layer %s: %w", name, err)
	}

	v.log.InfoContext(ctx, "Layer import dispatched", "execution_id", executionID, "layer", name, "alternate", alternate, "batches", len(header)-1)

	return nil
}

// Ogr2OgrArgs loads originalName from the base file into the alternate table.
func (v *Vector) Ogr2OgrArgs(_ context.Context, files map[string]string, originalName string, overwrite bool, alternate string) ([]string, error) {
	return converter.Args(v.Datastore, files["base_file"], originalName, alternate, overwrite), nil
}

func (v *Vector) CreateResource(ctx context.Context, layerName, alternate, executionID string) (*models.Resource, error) {
	execution, err := v.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	files := execution.Files()

	srid, err := v.layerSRS(ctx, files["base_file"], layerName)
	if err != nil {
		v.log.WarnContext(ctx, "Failed to read the layer SRS", "layer", layerName, "error", err)
	}

	resource := &models.Resource{
		Alternate:  v.Qualify(alternate),
		Name:       layerOf(alternate),
		Title:      layerName,
		Owner:      execution.User,
		Workspace:  v.Workspace,
		Store:      v.DatastoreName,
		Subtype:    models.SubtypeVector,
		SourceType: models.SourceTypeLocal,
		SRID:       srid,
		Files:      StoredFiles(execution),
	}

	return v.Register(ctx, resource, files)
}

func (v *Vector) layerSRS(ctx context.Context, path, layerName string) (string, error) {
	layers, err := v.inspector.Layers(ctx, path)
	if err != nil {
		return "", err
	}

	for _, l := range layers {
		if handlers.FixupName(l.Name) == layerName {
			return l.SRS, nil
		}
	}

	return "", nil
}

// ExtractResourceToPublish returns the layer matching layerName, or nothing when it has no SRS. A copy
// republishes the new table with the SRS of the original resource.
func (v *Vector) ExtractResourceToPublish(ctx context.Context, files map[string]string, action models.Action, layerName, alternate string, kwargs models.Params) ([]handlers.PublishTarget, error) {
	if action == models.ActionCopy {
		return v.copyTargets(ctx, alternate, kwargs)
	}

	layers, err := v.inspector.Layers(ctx, files["base_file"])
	if err != nil {
		return nil, err
	}

	var targets []handlers.PublishTarget

	for _, l := range layers {
		if handlers.FixupName(l.Name) != layerName || l.SRS == "" {
			continue
		}

		targets = append(targets, handlers.PublishTarget{Name: layerOf(alternate), CRS: l.SRS})
	}

	return targets, nil
}

func (v *Vector) PublishResources(ctx context.Context, targets []handlers.PublishTarget, client mapserver.Client, store *mapserver.Store, _ string) error {
	for _, t := range targets {
		err := client.PublishFeatureType(ctx, store, t.Name, t.CRS)
		if err != nil {
			return err
		}

		v.log.InfoContext(ctx, "Layer published", "layer", t.Name, "store", store.Name, "crs", t.CRS)
	}

	return nil
}

func (v *Vector) Compensators() map[string]handlers.Compensator {
	return map[string]handlers.Compensator{
		handlers.TaskImportResource:   v.DropSchema,
		handlers.TaskPublishResource:  v.Unpublish,
		handlers.TaskCreateResource:   v.DeleteCatalogResource,
		handlers.TaskCopyResource:     v.DeleteCatalogResource,
		handlers.TaskCopyDynamicModel: v.DropSchema,
		handlers.TaskCopyDataTable:    v.DropSchema,
	}
}

// DropSchema removes the dynamic schema and the table of instance.
func (v *Vector) DropSchema(ctx context.Context, _, instance string, _ models.Params) error {
	return v.Schemas.Drop(ctx, instance)
}

// DeleteResource drops the table and the map server layer of a deleted resource.
func (v *Vector) DeleteResource(ctx context.Context, resource *models.Resource) error {
	err := v.MapServer.DeleteLayer(ctx, resource.WorkspaceName(), resource.LayerName())
	if errors.Is(err, mapserver.ErrNotFound) {
		err = nil
	}

	return multierr.Append(err, v.Schemas.Drop(ctx, resource.Alternate))
}

func (v *Vector) PerformLastStep(ctx context.Context, executionID string) error {
	return v.DeleteTaskResults(ctx, executionID)
}
