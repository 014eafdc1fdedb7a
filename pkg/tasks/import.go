package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukex/geoimporter/pkg/datastore"
	"github.com/dukex/geoimporter/pkg/dynamicschema"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/orchestrator"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	"github.com/dukex/geoimporter/pkg/taskqueue"
)

func (t *Tasks) importOrchestrator(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()

	otelhelper.Annotate(ctx, otelhelper.Step{
		HandlerKey: msg.Arg(1),
		Step:       msg.Arg(2),
		Layer:      msg.Arg(3),
		Alternate:  msg.Arg(4),
		Action:     msg.Arg(5),
	})

	err := t.orch.PerformNextStep(ctx, orchestrator.NextStep{
		ExecutionID: executionID,
		HandlerKey:  msg.Arg(1),
		Step:        msg.Arg(2),
		LayerName:   msg.Arg(3),
		Alternate:   msg.Arg(4),
		Action:      models.Action(msg.Arg(5)),
		Kwargs:      models.Params(msg.Kwargs).Clone(),
	})
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	return nil
}

// importResource validates the staged files again and asks the handler to start the import.
func (t *Tasks) importResource(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()
	otelhelper.Annotate(ctx, otelhelper.Step{HandlerKey: msg.Arg(1)})

	execution, err := t.begin(ctx, executionID, handlers.TaskImportResource)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	h, err := t.orch.LoadHandler(msg.Arg(1))
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	manager := datastore.New(h, execution)

	err = manager.InputIsValid(ctx)
	if err != nil {
		return handlers.InvalidInputFileError(executionID, err)
	}

	err = manager.StartImport(ctx)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	return nil
}

// importMetadata attaches a standalone metadata or style file; the handler closes the execution.
func (t *Tasks) importMetadata(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()
	otelhelper.Annotate(ctx, otelhelper.Step{HandlerKey: msg.Arg(1)})

	execution, err := t.begin(ctx, executionID, handlers.TaskImportMetadata)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	h, err := t.orch.LoadHandler(msg.Arg(1))
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	err = datastore.New(h, execution).StartImport(ctx)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	return nil
}

// createDynamicStructure stores one batch of field definitions of a layer schema.
func (t *Tasks) createDynamicStructure(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()
	schemaID := msg.Arg(1)
	alternate := msg.Arg(3)

	overwrite, _ := strconv.ParseBool(msg.Arg(2))

	otelhelper.Annotate(ctx, otelhelper.Step{
		HandlerKey: models.Params(msg.Kwargs).String(models.ParamHandlerModulePath),
		Alternate:  alternate,
	})

	specs, err := dynamicschema.SpecsFromKwarg(msg.Kwargs[handlers.KwargFields])
	if err != nil {
		return handlers.InvalidFieldNameError(executionID, err)
	}

	err = t.schemas.CreateFields(ctx, schemaID, specs, overwrite)
	if errors.Is(err, dynamicschema.ErrInvalidFieldName) {
		return handlers.InvalidFieldNameError(executionID, err)
	}

	if err != nil {
		return handlers.DynamicModelError(executionID, fmt.Errorf("failed to store fields of %s: %w", alternate, err))
	}

	t.logger.DebugContext(ctx, "Dynamic structure stored", "execution_id", executionID, "alternate", alternate, "fields", len(specs))

	return nil
}

// importWithOgr2ogr loads one layer of the source into its table.
func (t *Tasks) importWithOgr2ogr(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()
	originalName := msg.Arg(1)
	alternate := msg.Arg(4)

	overwrite, _ := strconv.ParseBool(msg.Arg(3))

	otelhelper.Annotate(ctx, otelhelper.Step{HandlerKey: msg.Arg(2), Layer: originalName, Alternate: alternate})

	execution, err := t.orch.GetExecution(ctx, executionID)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	h, err := t.orch.LoadHandler(msg.Arg(2))
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	builder, ok := h.(handlers.OgrCommandBuilder)
	if !ok {
		return handlers.StartImportError(executionID, fmt.Errorf("handler %s does not convert with ogr2ogr: %w", h.Key(), handlers.ErrNotSupported))
	}

	args, err := builder.Ogr2OgrArgs(ctx, execution.Files(), originalName, overwrite, alternate)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	err = t.converter.Run(ctx, args, alternate)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	t.logger.InfoContext(ctx, "Layer converted", "execution_id", executionID, "layer", originalName, "alternate", alternate)

	return nil
}

// importNextStep joins a layer fan out and hands the layer back to the orchestrator.
func (t *Tasks) importNextStep(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()

	otelhelper.Annotate(ctx, otelhelper.Step{
		HandlerKey: msg.Arg(1),
		Step:       msg.Arg(2),
		Layer:      msg.Arg(3),
		Alternate:  msg.Arg(4),
	})

	execution, err := t.orch.GetExecution(ctx, executionID)
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	err = t.orch.PerformNextStep(ctx, orchestrator.NextStep{
		ExecutionID: executionID,
		Action:      execution.Action,
		HandlerKey:  msg.Arg(1),
		Step:        msg.Arg(2),
		LayerName:   msg.Arg(3),
		Alternate:   msg.Arg(4),
		Kwargs:      models.Params(msg.Kwargs).Clone(),
	})
	if err != nil {
		return handlers.StartImportError(executionID, err)
	}

	return nil
}
