package file

import (
	"context"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

const executionKind = "execution_request"

// ExecutionRequestRepository handles execution request file operations.
type ExecutionRequestRepository struct {
	docs *documents[models.ExecutionRequest]
}

func (r *ExecutionRequestRepository) Save(_ context.Context, execution *models.ExecutionRequest) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	toSave := *execution
	if toSave.InputParams == nil {
		toSave.InputParams = models.Params{}
	}

	if toSave.OutputParams == nil {
		toSave.OutputParams = models.Params{}
	}

	err := r.docs.write(execution.ExecID, &toSave)
	if err != nil {
		return persistence.NewRepositoryError("Save", executionKind, execution.ExecID, err)
	}

	return nil
}

func (r *ExecutionRequestRepository) GetByID(_ context.Context, execID string) (*models.ExecutionRequest, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	return r.get("GetByID", execID)
}

func (r *ExecutionRequestRepository) get(op, execID string) (*models.ExecutionRequest, error) {
	execution, err := r.docs.read(execID)
	if err != nil {
		return nil, persistence.NewRepositoryError(op, executionKind, execID, err)
	}

	if execution == nil {
		return nil, persistence.NewRepositoryError(op, executionKind, execID, persistence.ErrExecutionRequestNotFound)
	}

	return execution, nil
}

func (r *ExecutionRequestRepository) Update(_ context.Context, execID string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	execution, err := r.get("Update", execID)
	if err != nil {
		return nil, err
	}

	update.Apply(execution, time.Now().UTC())

	err = r.docs.write(execID, execution)
	if err != nil {
		return nil, persistence.NewRepositoryError("Update", executionKind, execID, err)
	}

	return execution, nil
}

func (r *ExecutionRequestRepository) CountActiveByUser(_ context.Context, user, excludeID string) (int, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	active, err := r.docs.filter(func(e *models.ExecutionRequest) bool {
		return e.User == user && e.ExecID != excludeID && !e.Status.IsTerminal()
	})
	if err != nil {
		return 0, persistence.NewRepositoryError("CountActiveByUser", executionKind, "", err)
	}

	return len(active), nil
}
