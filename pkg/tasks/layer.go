package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/publisher"
	"github.com/dukex/geoimporter/pkg/taskqueue"
)

// publishResource registers the layer on the map server. Layers without a CRS are not published.
func (t *Tasks) publishResource(ctx context.Context, msg *taskqueue.Message) error {
	args := parseLayerArgs(ctx, msg)

	execution, err := t.begin(ctx, args.executionID, handlers.TaskPublishResource)
	if err != nil {
		return handlers.PublishResourceError(args.executionID, err)
	}

	h, err := t.orch.LoadHandler(args.handlerKey)
	if err != nil {
		return handlers.PublishResourceError(args.executionID, err)
	}

	pub := publisher.New(h, t.mapServer, t.publishing, t.logger)

	targets, err := pub.ExtractResourceToPublish(ctx, execution.Files(), args.action, args.layer, args.alternate, args.kwargs)
	if err != nil {
		return handlers.PublishResourceError(args.executionID, err)
	}

	published, err := pub.PublishResources(ctx, targets)
	if err != nil {
		return retryable(handlers.PublishResourceError(args.executionID, err))
	}

	if !published {
		t.logger.InfoContext(ctx, "Nothing to publish, the layer has no CRS", "execution_id", args.executionID, "alternate", args.alternate)
	}

	return t.next(ctx, args, handlers.TaskPublishResource)
}

// createResource registers the catalog resource of the layer and links it to the handler.
func (t *Tasks) createResource(ctx context.Context, msg *taskqueue.Message) error {
	args := parseLayerArgs(ctx, msg)

	_, err := t.begin(ctx, args.executionID, handlers.TaskCreateResource)
	if err != nil {
		return handlers.ResourceCreationError(args.executionID, err)
	}

	h, err := t.orch.LoadHandler(args.handlerKey)
	if err != nil {
		return handlers.ResourceCreationError(args.executionID, err)
	}

	resource, err := h.CreateResource(ctx, args.layer, args.alternate, args.executionID)
	if err != nil {
		return retryable(handlers.ResourceCreationError(args.executionID, err))
	}

	err = t.link(ctx, h, resource, args)
	if err != nil {
		return handlers.ResourceCreationError(args.executionID, err)
	}

	return t.next(ctx, args, handlers.TaskCreateResource)
}

func (t *Tasks) link(ctx context.Context, h handlers.Handler, resource *models.Resource, args layerArgs) error {
	err := h.CreateResourceHandlerInfo(ctx, resource, args.executionID, args.kwargs)
	if err != nil {
		return fmt.Errorf("failed to link resource %s: %w", resource.Alternate, err)
	}

	_, err = t.orch.UpdateExecutionRequestStatus(ctx, args.executionID, persistence.ExecutionUpdate{
		ResourceID:   persistence.Ptr(resource.ID),
		OutputParams: map[string]any{models.OutputDetailURL: resource.DetailURL},
	})

	return err
}

// originalResource returns the resource a copy starts from.
func (t *Tasks) originalResource(ctx context.Context, args layerArgs) (*models.Resource, error) {
	alternate := args.kwargs.String(handlers.KwargOriginalAlternate)
	if alternate == "" {
		return nil, fmt.Errorf("missing %s", handlers.KwargOriginalAlternate)
	}

	resource, err := t.resources.GetByAlternate(ctx, alternate)
	if persistence.IsResourceNotFound(err) && !strings.Contains(alternate, ":") {
		resource, err = t.resources.GetByAlternate(ctx, t.publishing.Workspace+":"+alternate)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find the resource to copy %s: %w", alternate, err)
	}

	return resource, nil
}

// newAlternate is the alternate of the copy, from the kwargs or the positional argument.
func newAlternate(args layerArgs) string {
	if alternate := args.kwargs.String(handlers.KwargNewAlternate); alternate != "" {
		return alternate
	}

	return args.alternate
}

// copyResource duplicates the catalog entry of the original resource under the new alternate.
func (t *Tasks) copyResource(ctx context.Context, msg *taskqueue.Message) error {
	args := parseLayerArgs(ctx, msg)

	execution, err := t.begin(ctx, args.executionID, handlers.TaskCopyResource)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	h, err := t.orch.LoadHandler(args.handlerKey)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	copier, ok := h.(handlers.Copier)
	if !ok {
		return handlers.CopyResourceError(args.executionID, fmt.Errorf("handler %s cannot copy resources: %w", h.Key(), handlers.ErrNotSupported))
	}

	original, err := t.originalResource(ctx, args)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	copied, err := copier.CopyResource(ctx, original, execution, newAlternate(args), args.kwargs)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	err = t.link(ctx, h, copied, args)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	return t.next(ctx, args, handlers.TaskCopyResource)
}

// copyDynamicModel duplicates the schema definition of the original layer.
func (t *Tasks) copyDynamicModel(ctx context.Context, msg *taskqueue.Message) error {
	args := parseLayerArgs(ctx, msg)

	_, err := t.begin(ctx, args.executionID, handlers.TaskCopyDynamicModel)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	_, err = t.schemas.Copy(ctx, args.kwargs.String(handlers.KwargOriginalAlternate), newAlternate(args))
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	return t.next(ctx, args, handlers.TaskCopyDynamicModel)
}

// copyDataTable duplicates the rows of the original layer table.
func (t *Tasks) copyDataTable(ctx context.Context, msg *taskqueue.Message) error {
	args := parseLayerArgs(ctx, msg)

	_, err := t.begin(ctx, args.executionID, handlers.TaskCopyDataTable)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	err = t.schemas.CopyTable(ctx, args.kwargs.String(handlers.KwargOriginalAlternate), newAlternate(args))
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	return t.next(ctx, args, handlers.TaskCopyDataTable)
}

// copyRasterFile duplicates the original raster and passes its location to the following steps.
func (t *Tasks) copyRasterFile(ctx context.Context, msg *taskqueue.Message) error {
	args := parseLayerArgs(ctx, msg)

	_, err := t.begin(ctx, args.executionID, handlers.TaskCopyRasterFile)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	h, err := t.orch.LoadHandler(args.handlerKey)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	copier, ok := h.(handlers.RasterCopier)
	if !ok {
		return handlers.CopyResourceError(args.executionID, fmt.Errorf("handler %s cannot copy raster files: %w", h.Key(), handlers.ErrNotSupported))
	}

	original, err := t.originalResource(ctx, args)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	location, err := copier.CopyOriginalFile(ctx, original, args.executionID)
	if err != nil {
		return handlers.CopyResourceError(args.executionID, err)
	}

	args.kwargs[handlers.KwargNewFileLocation] = location

	return t.next(ctx, args, handlers.TaskCopyRasterFile)
}
