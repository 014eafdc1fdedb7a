package handlers

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/geoimporter/pkg/models"
	"go.uber.org/multierr"
)

// Rollback runs the compensators of action's steps in reverse order, from fromStep back to the step
// following the sentinel. Every compensator runs even when a previous one failed; the failures are
// combined in the returned error.
func Rollback(ctx context.Context, h Handler, executionID string, action models.Action, fromStep, instance string, kwargs models.Params) error {
	rollbacker, ok := h.(RollbackHandler)
	if !ok {
		return fmt.Errorf("handler %s cannot roll back: %w", h.Key(), ErrNotSupported)
	}

	steps, err := h.TaskList(action)
	if err != nil {
		return err
	}

	from := slices.Index(steps, fromStep)
	if from < 0 {
		return fmt.Errorf("step %s is not part of the %s task list of %s", fromStep, action, h.Key())
	}

	compensators := rollbacker.Compensators()

	var errs error

	for i := from; i > 0; i-- {
		compensate, ok := compensators[steps[i]]
		if !ok {
			continue
		}

		if cerr := compensate(ctx, executionID, instance, kwargs); cerr != nil {
			errs = multierr.Append(errs, fmt.Errorf("rollback of %s: %w", steps[i], cerr))
		}
	}

	return errs
}
