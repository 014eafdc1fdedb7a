package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/geoimporter/pkg/config"
	"github.com/dukex/geoimporter/pkg/converter"
	"github.com/dukex/geoimporter/pkg/dynamicschema"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/orchestrator"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/publisher"
	"github.com/dukex/geoimporter/pkg/taskqueue"
)

// Deps are the collaborators of the pipeline tasks.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   taskqueue.Dispatcher
	Resources    persistence.ResourceRepository
	Schemas      *dynamicschema.Service
	Converter    *converter.Converter
	MapServer    mapserver.Client
	Publishing   publisher.Options
	Logger       *slog.Logger
}

// Config tunes retries, admission rates and the automatic rollback of failed executions.
type Config struct {
	Retries           config.Retries
	RateLimits        config.RateLimits
	RollbackOnFailure bool
}

type Tasks struct {
	orch       *orchestrator.Orchestrator
	dispatcher taskqueue.Dispatcher
	resources  persistence.ResourceRepository
	schemas    *dynamicschema.Service
	converter  *converter.Converter
	mapServer  mapserver.Client
	publishing publisher.Options
	cfg        Config
	logger     *slog.Logger
}

func New(deps Deps, cfg Config) *Tasks {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tasks{
		orch:       deps.Orchestrator,
		dispatcher: deps.Dispatcher,
		resources:  deps.Resources,
		schemas:    deps.Schemas,
		converter:  deps.Converter,
		mapServer:  deps.MapServer,
		publishing: deps.Publishing,
		cfg:        cfg,
		logger:     logger.With("module", "tasks"),
	}
}

// Specs returns the declaration of every pipeline task.
func (t *Tasks) Specs() []taskqueue.Spec {
	retries := t.cfg.Retries.Default
	limits := t.cfg.RateLimits

	specs := []taskqueue.Spec{
		{Name: handlers.TaskImportOrchestrator, Run: t.importOrchestrator, MaxRetries: retries, RateLimit: limits.Global, AlternateArg: 4},
		{Name: handlers.TaskImportResource, Run: t.importResource, MaxRetries: retries, RateLimit: limits.Global, AlternateArg: -1},
		{Name: handlers.TaskPublishResource, Run: t.publishResource, MaxRetries: t.cfg.Retries.Publish, RateLimit: limits.Publishing, AlternateArg: 3},
		{Name: handlers.TaskCreateResource, Run: t.createResource, MaxRetries: retries, RateLimit: limits.ResourceCreation, AlternateArg: 3},
		{Name: handlers.TaskCopyResource, Run: t.copyResource, MaxRetries: retries, RateLimit: limits.ResourceCreation, AlternateArg: 3},
		{Name: handlers.TaskCopyDynamicModel, Run: t.copyDynamicModel, MaxRetries: retries, RateLimit: limits.Copy, AlternateArg: 3},
		{Name: handlers.TaskCopyDataTable, Run: t.copyDataTable, MaxRetries: retries, RateLimit: limits.Copy, AlternateArg: 3},
		{Name: handlers.TaskCopyRasterFile, Run: t.copyRasterFile, MaxRetries: retries, RateLimit: limits.Copy, AlternateArg: 3},
		{Name: handlers.TaskCreateDynamicStructure, Run: t.createDynamicStructure, MaxRetries: retries, AlternateArg: 3},
		{Name: handlers.TaskImportWithOgr2ogr, Run: t.importWithOgr2ogr, MaxRetries: retries, AlternateArg: 4},
		{Name: handlers.TaskImportNextStep, Run: t.importNextStep, MaxRetries: retries, AlternateArg: 4},
		{Name: handlers.TaskImportMetadata, Run: t.importMetadata, MaxRetries: retries, AlternateArg: -1},
		{Name: handlers.TaskRollback, Run: t.rollback, MaxRetries: retries, AlternateArg: -1},
	}

	for i := range specs {
		specs[i].OnFailure = t.onFailure(specs[i].Name, specs[i].AlternateArg)
	}

	return append(specs, taskqueue.Spec{
		Name:         handlers.TaskDynamicModelErrorCallback,
		Run:          t.dynamicModelErrorCallback,
		AlternateArg: -1,
		OnFailure:    t.logFailure,
	})
}

// Register adds every pipeline task to registry.
func (t *Tasks) Register(registry *taskqueue.Registry) error {
	var errs []error

	for _, spec := range t.Specs() {
		errs = append(errs, registry.Register(spec))
	}

	return errors.Join(errs...)
}

// Names lists the task names declared by Specs.
func (t *Tasks) Names() []string {
	specs := t.Specs()

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}

	return names
}

// begin records step as the current step of the execution and returns it.
func (t *Tasks) begin(ctx context.Context, executionID, step string) (*models.ExecutionRequest, error) {
	execution, err := t.orch.UpdateExecutionRequestStatus(ctx, executionID, persistence.ExecutionUpdate{
		Step:     persistence.Ptr(step),
		FuncName: persistence.Ptr(step),
	})
	if persistence.IsExecutionRequestNotFound(err) {
		return nil, &handlers.ImportError{Detail: "The selected UUID does not exists"}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to update execution %s: %w", executionID, err)
	}

	return execution, nil
}

// layerArgs are the positional arguments shared by the per-layer steps.
type layerArgs struct {
	executionID string
	step        string
	layer       string
	alternate   string
	handlerKey  string
	action      models.Action
	kwargs      models.Params
}

// parseLayerArgs reads the layer arguments of msg and records them on the task span.
func parseLayerArgs(ctx context.Context, msg *taskqueue.Message) layerArgs {
	args := layerArgs{
		executionID: msg.ExecutionID(),
		step:        msg.Arg(1),
		layer:       msg.Arg(2),
		alternate:   msg.Arg(3),
		handlerKey:  msg.Arg(4),
		action:      models.Action(msg.Arg(5)),
		kwargs:      models.Params(msg.Kwargs).Clone(),
	}

	otelhelper.Annotate(ctx, otelhelper.Step{
		HandlerKey: args.handlerKey,
		Step:       args.step,
		Layer:      args.layer,
		Alternate:  args.alternate,
		Action:     string(args.action),
	})

	return args
}

// next hands the completed layer step back to the orchestrator.
func (t *Tasks) next(ctx context.Context, args layerArgs, step string) error {
	return t.orch.PerformNextStep(ctx, orchestrator.NextStep{
		ExecutionID: args.executionID,
		Action:      args.action,
		HandlerKey:  args.handlerKey,
		Step:        step,
		LayerName:   args.layer,
		Alternate:   args.alternate,
		Kwargs:      args.kwargs,
	})
}

// retryable marks map server outages as transient so the queue retries them.
func retryable(err error) error {
	if errors.Is(err, mapserver.ErrUnavailable) {
		return taskqueue.Transient(err)
	}

	return err
}
