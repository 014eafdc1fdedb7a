package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rollbackHandler struct {
	Handler

	calls []string
	fail  map[string]bool
}

func (h *rollbackHandler) Key() string { return "test.RollbackHandler" }

func (h *rollbackHandler) TaskList(action models.Action) ([]string, error) {
	if action != models.ActionImport {
		return nil, ErrNotSupported
	}

	return VectorImportSteps, nil
}

func (h *rollbackHandler) Compensators() map[string]Compensator {
	record := func(step string) Compensator {
		return func(_ context.Context, _, _ string, _ models.Params) error {
			h.calls = append(h.calls, step)
			if h.fail[step] {
				return errors.New(step + " failed")
			}

			return nil
		}
	}

	return map[string]Compensator{
		TaskImportResource:  record(TaskImportResource),
		TaskPublishResource: record(TaskPublishResource),
		TaskCreateResource:  record(TaskCreateResource),
	}
}

func TestRollback_ReverseOrderFromFailingStep(t *testing.T) {
	h := &rollbackHandler{}

	err := Rollback(context.Background(), h, "exec-1", models.ActionImport, TaskPublishResource, "roads", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{TaskPublishResource, TaskImportResource}, h.calls)
}

func TestRollback_RunsEveryCompensatorAndCombinesErrors(t *testing.T) {
	h := &rollbackHandler{fail: map[string]bool{TaskCreateResource: true, TaskImportResource: true}}

	err := Rollback(context.Background(), h, "exec-1", models.ActionImport, TaskCreateResource, "roads", nil)
	require.Error(t, err)

	assert.Len(t, h.calls, 3)
	assert.Contains(t, err.Error(), TaskCreateResource)
	assert.Contains(t, err.Error(), TaskImportResource)
}

func TestRollback_SentinelIsNoop(t *testing.T) {
	h := &rollbackHandler{}

	require.NoError(t, Rollback(context.Background(), h, "exec-1", models.ActionImport, StepStartImport, "roads", nil))
	assert.Empty(t, h.calls)
}

func TestRollback_Errors(t *testing.T) {
	h := &rollbackHandler{}

	err := Rollback(context.Background(), h, "exec-1", models.ActionImport, "importer.unknown", "roads", nil)
	require.Error(t, err)

	err = Rollback(context.Background(), h, "exec-1", models.ActionCopy, TaskCopyResource, "roads", nil)
	require.ErrorIs(t, err, ErrNotSupported)
}
