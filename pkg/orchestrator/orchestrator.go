// Package orchestrator owns the execution lifecycle: it creates execution requests, advances them
// through the task list of their handler and decides when a fanned-out execution is over.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/google/uuid"
)

// HandlerRegistry resolves handlers by payload or by persisted key.
type HandlerRegistry interface {
	handlers.Loader
	Resolve(payload handlers.Payload) handlers.Handler
}

// Observer is notified of every terminal execution.
type Observer interface {
	ObserveExecution(action models.Action, status models.ExecutionStatus)
}

type Options struct {
	// LegacyUploads mirrors every execution into an Upload record.
	LegacyUploads bool
	Observer      Observer
	Logger        *slog.Logger
}

type Orchestrator struct {
	executions persistence.ExecutionRequestRepository
	results    persistence.TaskResultRepository
	uploads    persistence.UploadRepository
	dispatcher taskqueue.Dispatcher
	registry   HandlerRegistry
	legacy     bool
	observer   Observer
	logger     *slog.Logger
	now        func() time.Time
}

func New(p persistence.Persistence, dispatcher taskqueue.Dispatcher, registry HandlerRegistry, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		executions: p.ExecutionRequestRepository(),
		results:    p.TaskResultRepository(),
		uploads:    p.UploadRepository(),
		dispatcher: dispatcher,
		registry:   registry,
		legacy:     opts.LegacyUploads,
		observer:   opts.Observer,
		logger:     logger.With("module", "orchestrator"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetHandler returns the highest priority handler claiming payload, or nil.
func (o *Orchestrator) GetHandler(payload handlers.Payload) handlers.Handler {
	return o.registry.Resolve(payload)
}

func (o *Orchestrator) LoadHandler(key string) (handlers.Handler, error) {
	h, err := o.registry.Load(key)
	if err != nil {
		return nil, &handlers.ImportError{Detail: "The handler is not available: " + key}
	}

	return h, nil
}

func (o *Orchestrator) GetExecution(ctx context.Context, executionID string) (*models.ExecutionRequest, error) {
	execution, err := o.executions.GetByID(ctx, executionID)
	if persistence.IsExecutionRequestNotFound(err) || errors.Is(err, persistence.ErrInvalidID) {
		return nil, &handlers.ImportError{Detail: "The selected UUID does not exists"}
	}

	if err != nil {
		return nil, err
	}

	return execution, nil
}

// NewExecution describes the execution request to create. An empty ExecID gets a fresh uuid.
type NewExecution struct {
	ExecID      string
	User        string
	FuncName    string
	Step        string
	InputParams models.Params
	Action      models.Action
	Name        string
}

// CreateExecutionRequest persists a READY execution and, in legacy mode, its Upload shadow.
func (o *Orchestrator) CreateExecutionRequest(ctx context.Context, req NewExecution) (string, error) {
	if req.ExecID == "" {
		req.ExecID = uuid.NewString()
	}

	if req.Action == "" {
		req.Action = models.ActionImport
	}

	now := o.now()

	execution := &models.ExecutionRequest{
		ExecID:       req.ExecID,
		User:         req.User,
		Name:         req.Name,
		FuncName:     req.FuncName,
		Step:         req.Step,
		Status:       models.ExecutionStatusReady,
		Action:       req.Action,
		InputParams:  req.InputParams.Clone(),
		OutputParams: models.Params{},
		Created:      now,
		LastUpdated:  now,
	}

	err := o.executions.Save(ctx, execution)
	if err != nil {
		return "", fmt.Errorf("failed to create execution request: %w", err)
	}

	if o.legacy {
		upload := &models.Upload{
			ID:          uuid.NewString(),
			ExecutionID: execution.ExecID,
			Name:        filepath.Base(execution.Files()["base_file"]),
			State:       models.UploadStateRunning,
			User:        execution.User,
			Metadata:    map[string]any{},
			Created:     now,
			Updated:     now,
		}

		err = o.uploads.Save(ctx, upload)
		if err != nil {
			return "", fmt.Errorf("failed to create legacy upload: %w", err)
		}
	}

	o.logger.InfoContext(ctx, "Execution request created", "execution_id", execution.ExecID, "action", execution.Action, "user", execution.User)

	return execution.ExecID, nil
}

// UpdateExecutionRequestStatus merges update into the execution. Illegal status changes are dropped
// with a warning; the remaining fields are still saved.
func (o *Orchestrator) UpdateExecutionRequestStatus(ctx context.Context, executionID string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error) {
	if update.Status != nil {
		current, err := o.executions.GetByID(ctx, executionID)
		if err != nil {
			return nil, err
		}

		if !models.CanTransition(current.Status, *update.Status) {
			o.logger.WarnContext(ctx, "Status change ignored", "execution_id", executionID, "from", current.Status, "to", *update.Status)
		}
	}

	execution, err := o.executions.Update(ctx, executionID, update)
	if err != nil {
		return nil, err
	}

	if o.legacy && update.Status != nil {
		err = o.uploads.UpdateByExecution(ctx, executionID, uploadState(execution.Status), execution.Status.IsTerminal())
		if err != nil && !persistence.IsUploadNotFound(err) {
			return nil, fmt.Errorf("failed to update legacy upload: %w", err)
		}
	}

	return execution, nil
}

func uploadState(status models.ExecutionStatus) string {
	switch status {
	case models.ExecutionStatusFailed:
		return models.UploadStateInvalid
	case models.ExecutionStatusFinished:
		return models.UploadStateProcessed
	default:
		return models.UploadStateRunning
	}
}

// SetAsFailed moves the execution to FAILED with reason as its log.
func (o *Orchestrator) SetAsFailed(ctx context.Context, executionID, reason string) error {
	return o.finish(ctx, executionID, models.ExecutionStatusFailed, reason)
}

func (o *Orchestrator) SetAsCompleted(ctx context.Context, executionID string) error {
	return o.finish(ctx, executionID, models.ExecutionStatusFinished, "")
}

func (o *Orchestrator) finish(ctx context.Context, executionID string, status models.ExecutionStatus, reason string) error {
	current, err := o.executions.GetByID(ctx, executionID)
	if err != nil {
		return err
	}

	applied := models.CanTransition(current.Status, status)

	update := persistence.ExecutionUpdate{
		Status:   persistence.Ptr(status),
		Finished: persistence.Ptr(o.now()),
	}

	if reason != "" {
		update.Log = persistence.Ptr(reason)
	}

	if !applied || current.Status == status {
		// Keep the first terminal outcome and its timestamp.
		update.Finished = nil
		update.Log = nil
	}

	execution, err := o.UpdateExecutionRequestStatus(ctx, executionID, update)
	if err != nil {
		return err
	}

	if applied && current.Status != status {
		if o.observer != nil {
			o.observer.ObserveExecution(execution.Action, status)
		}

		o.logger.InfoContext(ctx, "Execution finished", "execution_id", executionID, "status", status)
	}

	return nil
}

// NextStep identifies the step that just completed. LayerName and Alternate are set for per-layer steps.
type NextStep struct {
	ExecutionID string
	Action      models.Action
	HandlerKey  string
	Step        string
	LayerName   string
	Alternate   string
	Kwargs      models.Params
}

// PerformNextStep dispatches the step following next.Step in the task list of the handler. At the
// end of the list it evaluates the execution instead. Failures mark the execution as failed.
func (o *Orchestrator) PerformNextStep(ctx context.Context, next NextStep) error {
	err := o.performNextStep(ctx, next)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to perform next step", "execution_id", next.ExecutionID, "step", next.Step, "error", err)

		if failErr := o.SetAsFailed(ctx, next.ExecutionID, handlers.ErrorHandler(err, next.ExecutionID)); failErr != nil {
			o.logger.ErrorContext(ctx, "Failed to mark execution as failed", "execution_id", next.ExecutionID, "error", failErr)
		}

		return err
	}

	return nil
}

func (o *Orchestrator) performNextStep(ctx context.Context, next NextStep) error {
	execution, err := o.GetExecution(ctx, next.ExecutionID)
	if err != nil {
		return err
	}

	if execution.Status.IsTerminal() {
		o.logger.InfoContext(ctx, "Execution already terminated, nothing to dispatch", "execution_id", next.ExecutionID, "status", execution.Status)

		return nil
	}

	action := next.Action
	if action == "" {
		action = execution.Action
	}

	key := next.HandlerKey
	if key == "" {
		key = execution.HandlerKey()
	}

	h, err := o.LoadHandler(key)
	if err != nil {
		return err
	}

	steps, err := h.TaskList(action)
	if err != nil {
		return &handlers.ImportError{Detail: fmt.Sprintf("The handler %s does not support the action %s", key, action)}
	}

	step := next.Step
	if step == "" {
		step = execution.Step
	}

	index := slices.Index(steps, step)
	if index < 0 {
		return &handlers.ImportError{Detail: fmt.Sprintf("The step %s is not part of the %s task list of %s", step, action, key)}
	}

	if index == 0 {
		_, err = o.UpdateExecutionRequestStatus(ctx, next.ExecutionID, persistence.ExecutionUpdate{
			Status: persistence.Ptr(models.ExecutionStatusRunning),
		})
		if err != nil {
			return err
		}
	}

	if index == len(steps)-1 {
		return o.EvaluateExecutionProgress(ctx, next.ExecutionID, key)
	}

	following := steps[index+1]

	args := []string{next.ExecutionID, key, string(action)}
	if next.LayerName != "" && next.Alternate != "" {
		args = []string{next.ExecutionID, following, next.LayerName, next.Alternate, key, string(action)}
	}

	sig := taskqueue.NewSignature(following, args...)
	if len(next.Kwargs) > 0 {
		sig = sig.WithKwargs(next.Kwargs.Clone())
	}

	_, err = o.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		return fmt.Errorf("failed to dispatch %s: %w", following, err)
	}

	o.logger.InfoContext(ctx, "Next step dispatched", "execution_id", next.ExecutionID, "step", following, "layer", next.LayerName)

	return nil
}

// EvaluateExecutionProgress closes the execution once none of its tasks is still pending. The task
// running in ctx and the tasks that led to it are not waited for. A failed task fails the execution.
func (o *Orchestrator) EvaluateExecutionProgress(ctx context.Context, executionID, handlerKey string) error {
	results, err := o.results.ListByExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to list task results: %w", err)
	}

	ancestors := lineage(results, taskqueue.TaskIDFromContext(ctx))

	var pending, failed int

	for _, r := range results {
		if r.Status == models.TaskStateFailure {
			failed++

			continue
		}

		if ancestors[r.TaskID] {
			continue
		}

		if !r.Status.IsDone() {
			pending++
		}
	}

	switch {
	case failed > 0:
		aggregated := &handlers.ImportError{Detail: handlers.AggregationMessage}

		err = o.SetAsFailed(ctx, executionID, handlers.ErrorHandler(aggregated, executionID))
		if err != nil {
			return err
		}

		return aggregated
	case pending > 0:
		o.logger.DebugContext(ctx, "Execution still has pending tasks", "execution_id", executionID, "pending", pending)

		return nil
	}

	current, err := o.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	if current.Status.IsTerminal() {
		return nil
	}

	err = o.SetAsCompleted(ctx, executionID)
	if err != nil {
		return err
	}

	if handlerKey == "" {
		handlerKey = current.HandlerKey()
	}

	h, err := o.LoadHandler(handlerKey)
	if err != nil {
		return err
	}

	if last, ok := h.(handlers.LastStepPerformer); ok {
		err = last.PerformLastStep(ctx, executionID)
		if err != nil {
			o.logger.ErrorContext(ctx, "Last step failed", "execution_id", executionID, "error", err)

			return err
		}
	}

	return nil
}

// lineage returns taskID and every task that dispatched it, walking the parent links.
func lineage(results []*models.TaskResult, taskID string) map[string]bool {
	byID := make(map[string]*models.TaskResult, len(results))
	for _, r := range results {
		byID[r.TaskID] = r
	}

	seen := map[string]bool{}

	for id := taskID; id != "" && !seen[id]; {
		seen[id] = true

		r, ok := byID[id]
		if !ok {
			break
		}

		id = r.ParentID
	}

	return seen
}

// DeleteExecutionArtifacts removes the task results and the legacy upload of an execution.
func (o *Orchestrator) DeleteExecutionArtifacts(ctx context.Context, executionID string) error {
	err := o.results.DeleteByExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to delete task results: %w", err)
	}

	if !o.legacy {
		return nil
	}

	err = o.uploads.DeleteByExecution(ctx, executionID)
	if err != nil && !persistence.IsUploadNotFound(err) {
		return fmt.Errorf("failed to delete legacy upload: %w", err)
	}

	return nil
}
