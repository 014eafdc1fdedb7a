package common

import (
	"context"
	"fmt"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/taskqueue"
)

// DirectOptions customise a Direct handler.
type DirectOptions struct {
	Subtype    string
	SourceType string
	// Name returns the layer name of the resource an execution produces.
	Name func(execution *models.ExecutionRequest) string
	// Prepare completes the resource before it is stored.
	Prepare func(ctx context.Context, execution *models.ExecutionRequest, resource *models.Resource) error
	// AfterRegister runs once the resource is stored.
	AfterRegister func(ctx context.Context, execution *models.ExecutionRequest, resource *models.Resource) error
}

// Direct registers one catalog resource per execution, without conversion or publication.
type Direct struct {
	Base

	opts DirectOptions
}

func NewDirect(base Base, opts DirectOptions) Direct {
	return Direct{Base: base, opts: opts}
}

func (d *Direct) ImportResource(ctx context.Context, _ map[string]string, executionID string) error {
	execution, err := d.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	name := handlers.FixupName(d.opts.Name(execution))
	if name == "" {
		return fmt.Errorf("cannot derive a layer name for execution %s", executionID)
	}

	existing, err := d.FindExisting(ctx, execution.User, name)
	if err != nil {
		return err
	}

	if !ShouldBeImported(existing, execution.SkipExisting()) {
		d.log.InfoContext(ctx, "Resource already exists, skipping", "execution_id", executionID, "layer", name)

		return d.Executions.EvaluateExecutionProgress(ctx, executionID, d.key)
	}

	alternate, err := d.ResolveAlternate(ctx, existing, name, executionID, execution.OverrideExisting())
	if err != nil {
		return err
	}

	_, err = d.Dispatcher.Dispatch(ctx, taskqueue.NewSignature(handlers.TaskImportNextStep, executionID, d.key, handlers.TaskImportResource, name, alternate))

	return err
}

func (d *Direct) CreateResource(ctx context.Context, layerName, alternate, executionID string) (*models.Resource, error) {
	execution, err := d.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	resource := &models.Resource{
		Alternate:  d.Qualify(alternate),
		Name:       layerOf(alternate),
		Title:      execution.InputParams.String(models.ParamTitle),
		Owner:      execution.User,
		Workspace:  d.Workspace,
		Subtype:    d.opts.Subtype,
		SourceType: d.opts.SourceType,
		Files:      StoredFiles(execution),
	}

	if resource.Title == "" {
		resource.Title = layerName
	}

	if d.opts.Prepare != nil {
		err = d.opts.Prepare(ctx, execution, resource)
		if err != nil {
			return nil, err
		}
	}

	resource, err = d.Register(ctx, resource, execution.Files())
	if err != nil {
		return nil, err
	}

	if d.opts.AfterRegister != nil {
		err = d.opts.AfterRegister(ctx, execution, resource)
		if err != nil {
			return nil, err
		}
	}

	return resource, nil
}

func (d *Direct) Compensators() map[string]handlers.Compensator {
	return map[string]handlers.Compensator{
		handlers.TaskImportResource: d.NothingToUndo,
		handlers.TaskCreateResource: d.DeleteCatalogResource,
		handlers.TaskCopyResource:   d.DeleteCatalogResource,
	}
}

func (d *Direct) PerformLastStep(ctx context.Context, executionID string) error {
	return d.DeleteTaskResults(ctx, executionID)
}
