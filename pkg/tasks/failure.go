package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/otelhelper"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"go.uber.org/multierr"
)

// onFailure returns the hook run once task failed for good: the error is appended to the execution
// output, the execution is failed and evaluated, and a rollback is dispatched when enabled.
func (t *Tasks) onFailure(task string, alternateArg int) taskqueue.FailureFunc {
	return func(ctx context.Context, msg *taskqueue.Message, err error) {
		executionID := msg.ExecutionID()
		alternate := msg.Arg(alternateArg)

		t.logger.ErrorContext(ctx, "Task failed", "task", task, "execution_id", executionID, "alternate", alternate, "error", err)

		execution, getErr := t.orch.GetExecution(ctx, executionID)
		if getErr != nil {
			t.logger.ErrorContext(ctx, "Cannot record the failure", "task", task, "execution_id", executionID, "error", getErr)

			return
		}

		h, loadErr := t.orch.LoadHandler(execution.HandlerKey())

		entry := fmt.Sprintf("Task: %s raised an error during actions for layer: %s: %s", task, alternate, handlers.Detail(err))
		if loadErr == nil {
			entry = h.CreateErrorLog(err, task, alternate)
		}

		_, updateErr := t.orch.UpdateExecutionRequestStatus(ctx, executionID, persistence.ExecutionUpdate{
			OutputParams: map[string]any{models.OutputErrors: append(execution.Errors(), entry)},
		})
		if updateErr != nil {
			t.logger.ErrorContext(ctx, "Failed to store the error log", "execution_id", executionID, "error", updateErr)
		}

		failErr := t.orch.SetAsFailed(ctx, executionID, handlers.ErrorHandler(err, executionID))
		if failErr != nil {
			t.logger.ErrorContext(ctx, "Failed to mark execution as failed", "execution_id", executionID, "error", failErr)
		}

		if evalErr := t.orch.EvaluateExecutionProgress(ctx, executionID, execution.HandlerKey()); evalErr != nil {
			t.logger.DebugContext(ctx, "Execution evaluated after failure", "execution_id", executionID, "result", evalErr)
		}

		if !t.cfg.RollbackOnFailure || task == handlers.TaskRollback || loadErr != nil {
			return
		}

		t.dispatchRollback(ctx, h, execution, task, alternate, msg.Kwargs)
	}
}

// dispatchRollback schedules the compensation of the steps run so far.
func (t *Tasks) dispatchRollback(ctx context.Context, h handlers.Handler, execution *models.ExecutionRequest, task, alternate string, kwargs map[string]any) {
	if _, ok := h.(handlers.RollbackHandler); !ok {
		return
	}

	steps, err := h.TaskList(execution.Action)
	if err != nil {
		return
	}

	from := task
	if !slices.Contains(steps, from) {
		from = execution.Step
	}

	if !slices.Contains(steps, from) || handlers.IsSentinel(from) {
		t.logger.InfoContext(ctx, "Nothing to roll back", "execution_id", execution.ExecID, "step", from)

		return
	}

	instance := alternate
	if instance == "" {
		instance = execution.InputParams.String(handlers.KwargNewAlternate)
	}

	rollbackKwargs := models.Params(kwargs).Merge(map[string]any{
		handlers.KwargRollbackFromStep: from,
		handlers.KwargActionToRollback: string(execution.Action),
		handlers.KwargInstanceName:     instance,
	})

	sig := taskqueue.NewSignature(handlers.TaskRollback, execution.ExecID, h.Key(), string(models.ActionRollback)).
		WithKwargs(rollbackKwargs)

	_, err = t.dispatcher.Dispatch(ctx, sig)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to dispatch rollback", "execution_id", execution.ExecID, "error", err)

		return
	}

	t.logger.InfoContext(ctx, "Rollback dispatched", "execution_id", execution.ExecID, "from_step", from, "instance", instance)
}

// rollback undoes, in reverse order, the side effects of the steps up to rollback_from_step.
func (t *Tasks) rollback(ctx context.Context, msg *taskqueue.Message) error {
	executionID := msg.ExecutionID()
	kwargs := models.Params(msg.Kwargs)
	from := kwargs.String(handlers.KwargRollbackFromStep)

	otelhelper.Annotate(ctx, otelhelper.Step{
		HandlerKey: msg.Arg(1),
		Step:       from,
		Alternate:  kwargs.String(handlers.KwargInstanceName),
		Action:     kwargs.String(handlers.KwargActionToRollback),
	})

	_, err := t.begin(ctx, executionID, handlers.TaskRollback)
	if err != nil {
		return err
	}

	h, err := t.orch.LoadHandler(msg.Arg(1))
	if err != nil {
		return err
	}

	action, err := models.ParseAction(kwargs.String(handlers.KwargActionToRollback))
	if err != nil {
		return err
	}

	output := map[string]any{"rolled_back_from": from}

	// Compensation failures are reported on the execution, they never fail the rollback itself.
	rollbackErr := handlers.Rollback(ctx, h, executionID, action, from, kwargs.String(handlers.KwargInstanceName), kwargs)
	if rollbackErr != nil {
		messages := make([]string, 0)
		for _, e := range multierr.Errors(rollbackErr) {
			messages = append(messages, e.Error())
		}

		output["rollback_errors"] = messages

		t.logger.ErrorContext(ctx, "Rollback incomplete", "execution_id", executionID, "from_step", from, "error", rollbackErr)
	}

	_, err = t.orch.UpdateExecutionRequestStatus(ctx, executionID, persistence.ExecutionUpdate{OutputParams: output})
	if err != nil {
		return err
	}

	t.logger.InfoContext(ctx, "Execution rolled back", "execution_id", executionID, "from_step", from)

	return nil
}

// dynamicModelErrorCallback drops the schema of a layer whose fan out failed. The alternate is the
// last argument of the failed task. Errors are only logged.
func (t *Tasks) dynamicModelErrorCallback(ctx context.Context, msg *taskqueue.Message) error {
	alternate := msg.Arg(len(msg.Args) - 1)
	if alternate == "" || len(msg.Args) < 2 {
		return nil
	}

	err := t.schemas.Drop(ctx, alternate)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to drop dynamic schema", "execution_id", msg.ExecutionID(), "alternate", alternate, "error", err)
	}

	return nil
}

func (t *Tasks) logFailure(ctx context.Context, msg *taskqueue.Message, err error) {
	t.logger.ErrorContext(ctx, "Task failed", "task", msg.Name, "execution_id", msg.ExecutionID(), "error", err)
}
