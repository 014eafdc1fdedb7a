package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

const taskResultColumns = `
	task_id
  , task_name
  , parent_id
  , execution_id
  , task_args
  , task_kwargs
  , status
  , result
  , error
  , retries
  , date_created
  , date_done
`

// TaskResultRepository is the SQL result backend of the task queue.
type TaskResultRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskResultRepository creates a new task result repository.
func NewTaskResultRepository(db *sql.DB, logger *slog.Logger) *TaskResultRepository {
	return &TaskResultRepository{db: db, logger: logger}
}

// SaveResult upserts by task id. The creation date of the first write is kept.
func (r *TaskResultRepository) SaveResult(ctx context.Context, result *models.TaskResult) error {
	argsJSON, err := json.Marshal(nonNilSlice(result.Args))
	if err != nil {
		return persistence.NewRepositoryError("SaveResult", "task_result", result.TaskID, fmt.Errorf("failed to marshal args: %w", err))
	}

	kwargs := result.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	kwargsJSON, err := json.Marshal(kwargs)
	if err != nil {
		return persistence.NewRepositoryError("SaveResult", "task_result", result.TaskID, fmt.Errorf("failed to marshal kwargs: %w", err))
	}

	query := `
		INSERT INTO task_results (` + taskResultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (task_id) DO UPDATE SET
			task_name = EXCLUDED.task_name,
			parent_id = EXCLUDED.parent_id,
			execution_id = EXCLUDED.execution_id,
			task_args = EXCLUDED.task_args,
			task_kwargs = EXCLUDED.task_kwargs,
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			retries = EXCLUDED.retries,
			date_done = EXCLUDED.date_done
	`

	_, err = r.db.ExecContext(ctx, query,
		result.TaskID,
		result.TaskName,
		result.ParentID,
		result.ExecutionID,
		argsJSON,
		kwargsJSON,
		result.Status,
		result.Result,
		result.Error,
		result.Retries,
		result.Created,
		result.DoneAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("SaveResult", "task_result", result.TaskID, err)
	}

	return nil
}

func (r *TaskResultRepository) GetResult(ctx context.Context, taskID string) (*models.TaskResult, error) {
	result, err := scanTaskResult(r.db.QueryRowContext(ctx,
		`SELECT `+taskResultColumns+` FROM task_results WHERE task_id = $1`, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetResult", "task_result", taskID, persistence.ErrTaskResultNotFound)
		}

		return nil, persistence.NewRepositoryError("GetResult", "task_result", taskID, err)
	}

	return result, nil
}

func (r *TaskResultRepository) ListByExecution(ctx context.Context, execID string) ([]*models.TaskResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskResultColumns+` FROM task_results WHERE execution_id = $1 ORDER BY date_created`, execID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", "task_result", execID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	results := make([]*models.TaskResult, 0)

	for rows.Next() {
		result, err := scanTaskResult(rows)
		if err != nil {
			return nil, persistence.NewRepositoryError("ListByExecution", "task_result", execID, err)
		}

		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("ListByExecution", "task_result", execID, err)
	}

	return results, nil
}

func (r *TaskResultRepository) DeleteByExecution(ctx context.Context, execID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM task_results WHERE execution_id = $1`, execID)
	if err != nil {
		return persistence.NewRepositoryError("DeleteByExecution", "task_result", execID, err)
	}

	return nil
}

func (r *TaskResultRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM task_results WHERE date_created < $1`, before)
	if err != nil {
		return 0, persistence.NewRepositoryError("DeleteOlderThan", "task_result", "", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewRepositoryError("DeleteOlderThan", "task_result", "", err)
	}

	return int(affected), nil
}

func scanTaskResult(row scanner) (*models.TaskResult, error) {
	var (
		result               models.TaskResult
		argsJSON, kwargsJSON []byte
		doneAt               sql.NullTime
	)

	err := row.Scan(
		&result.TaskID,
		&result.TaskName,
		&result.ParentID,
		&result.ExecutionID,
		&argsJSON,
		&kwargsJSON,
		&result.Status,
		&result.Result,
		&result.Error,
		&result.Retries,
		&result.Created,
		&doneAt,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalColumn(argsJSON, &result.Args, "task_args")
	if err != nil {
		return nil, err
	}

	err = unmarshalColumn(kwargsJSON, &result.Kwargs, "task_kwargs")
	if err != nil {
		return nil, err
	}

	if doneAt.Valid {
		result.DoneAt = &doneAt.Time
	}

	return &result, nil
}

// UploadRepository handles legacy upload database operations.
type UploadRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewUploadRepository creates a new upload repository.
func NewUploadRepository(db *sql.DB, logger *slog.Logger) *UploadRepository {
	return &UploadRepository{db: db, logger: logger}
}

func (r *UploadRepository) Save(ctx context.Context, upload *models.Upload) error {
	metadata := upload.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return persistence.NewRepositoryError("Save", "upload", upload.ExecutionID, fmt.Errorf("failed to marshal metadata: %w", err))
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO uploads (exec_id, id, name, state, user_name, complete, metadata, created, updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (exec_id) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			complete = EXCLUDED.complete,
			metadata = EXCLUDED.metadata,
			updated = EXCLUDED.updated
	`, upload.ExecutionID, upload.ID, upload.Name, upload.State, upload.User, upload.Complete, metadataJSON, upload.Created, upload.Updated)
	if err != nil {
		return persistence.NewRepositoryError("Save", "upload", upload.ExecutionID, err)
	}

	return nil
}

func (r *UploadRepository) GetByExecution(ctx context.Context, execID string) (*models.Upload, error) {
	var (
		upload       models.Upload
		metadataJSON []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT exec_id, id, name, state, user_name, complete, metadata, created, updated
		FROM uploads
		WHERE exec_id = $1
	`, execID).Scan(&upload.ExecutionID, &upload.ID, &upload.Name, &upload.State, &upload.User,
		&upload.Complete, &metadataJSON, &upload.Created, &upload.Updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetByExecution", "upload", execID, persistence.ErrUploadNotFound)
		}

		return nil, persistence.NewRepositoryError("GetByExecution", "upload", execID, err)
	}

	err = unmarshalColumn(metadataJSON, &upload.Metadata, "metadata")
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByExecution", "upload", execID, err)
	}

	return &upload, nil
}

func (r *UploadRepository) UpdateByExecution(ctx context.Context, execID, state string, complete bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET state = $2, complete = $3, updated = $4 WHERE exec_id = $1`,
		execID, state, complete, time.Now().UTC())
	if err != nil {
		return persistence.NewRepositoryError("UpdateByExecution", "upload", execID, err)
	}

	return requireAffected(result, "UpdateByExecution", "upload", execID, persistence.ErrUploadNotFound)
}

func (r *UploadRepository) DeleteByExecution(ctx context.Context, execID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE exec_id = $1`, execID)
	if err != nil {
		return persistence.NewRepositoryError("DeleteByExecution", "upload", execID, err)
	}

	return nil
}
