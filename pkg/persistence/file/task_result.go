package file

import (
	"context"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

const (
	taskResultKind = "task_result"
	uploadKind     = "upload"
)

// TaskResultRepository handles task result file operations.
type TaskResultRepository struct {
	docs *documents[models.TaskResult]
}

func (r *TaskResultRepository) SaveResult(_ context.Context, result *models.TaskResult) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	err := r.docs.write(result.TaskID, result)
	if err != nil {
		return persistence.NewRepositoryError("SaveResult", taskResultKind, result.TaskID, err)
	}

	return nil
}

func (r *TaskResultRepository) GetResult(_ context.Context, taskID string) (*models.TaskResult, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	result, err := r.docs.read(taskID)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetResult", taskResultKind, taskID, err)
	}

	if result == nil {
		return nil, persistence.NewRepositoryError("GetResult", taskResultKind, taskID, persistence.ErrTaskResultNotFound)
	}

	return result, nil
}

func (r *TaskResultRepository) ListByExecution(_ context.Context, execID string) ([]*models.TaskResult, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	results, err := r.docs.filter(func(res *models.TaskResult) bool { return res.ExecutionID == execID })
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", taskResultKind, execID, err)
	}

	return results, nil
}

func (r *TaskResultRepository) DeleteByExecution(_ context.Context, execID string) error {
	_, err := r.deleteWhere("DeleteByExecution", execID, func(res *models.TaskResult) bool {
		return res.ExecutionID == execID
	})

	return err
}

func (r *TaskResultRepository) DeleteOlderThan(_ context.Context, before time.Time) (int, error) {
	return r.deleteWhere("DeleteOlderThan", "", func(res *models.TaskResult) bool {
		return res.Created.Before(before)
	})
}

func (r *TaskResultRepository) deleteWhere(op, key string, match func(*models.TaskResult) bool) (int, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	results, err := r.docs.filter(match)
	if err != nil {
		return 0, persistence.NewRepositoryError(op, taskResultKind, key, err)
	}

	for _, res := range results {
		if err := r.docs.remove(res.TaskID); err != nil {
			return 0, persistence.NewRepositoryError(op, taskResultKind, res.TaskID, err)
		}
	}

	return len(results), nil
}

// UploadRepository handles legacy upload file operations. Documents are keyed by execution id.
type UploadRepository struct {
	docs *documents[models.Upload]
}

func (r *UploadRepository) Save(_ context.Context, upload *models.Upload) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	err := r.docs.write(upload.ExecutionID, upload)
	if err != nil {
		return persistence.NewRepositoryError("Save", uploadKind, upload.ExecutionID, err)
	}

	return nil
}

func (r *UploadRepository) GetByExecution(_ context.Context, execID string) (*models.Upload, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	return r.get("GetByExecution", execID)
}

func (r *UploadRepository) get(op, execID string) (*models.Upload, error) {
	upload, err := r.docs.read(execID)
	if err != nil {
		return nil, persistence.NewRepositoryError(op, uploadKind, execID, err)
	}

	if upload == nil {
		return nil, persistence.NewRepositoryError(op, uploadKind, execID, persistence.ErrUploadNotFound)
	}

	return upload, nil
}

func (r *UploadRepository) UpdateByExecution(_ context.Context, execID, state string, complete bool) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	upload, err := r.get("UpdateByExecution", execID)
	if err != nil {
		return err
	}

	upload.State = state
	upload.Complete = complete
	upload.Updated = time.Now().UTC()

	err = r.docs.write(execID, upload)
	if err != nil {
		return persistence.NewRepositoryError("UpdateByExecution", uploadKind, execID, err)
	}

	return nil
}

func (r *UploadRepository) DeleteByExecution(_ context.Context, execID string) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	err := r.docs.remove(execID)
	if err != nil {
		return persistence.NewRepositoryError("DeleteByExecution", uploadKind, execID, err)
	}

	return nil
}
