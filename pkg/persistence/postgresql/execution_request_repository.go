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

const executionColumns = `
	exec_id
  , user_name
  , name
  , func_name
  , step
  , status
  , action
  , input_params
  , output_params
  , log
  , resource_id
  , created
  , last_updated
  , finished
`

// ExecutionRequestRepository handles execution request database operations.
type ExecutionRequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRequestRepository creates a new execution request repository.
func NewExecutionRequestRepository(db *sql.DB, logger *slog.Logger) *ExecutionRequestRepository {
	return &ExecutionRequestRepository{db: db, logger: logger}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save inserts or replaces an execution request.
func (r *ExecutionRequestRepository) Save(ctx context.Context, execution *models.ExecutionRequest) error {
	err := r.upsert(ctx, r.db, execution)
	if err != nil {
		return persistence.NewRepositoryError("Save", "execution_request", execution.ExecID, err)
	}

	return nil
}

func (r *ExecutionRequestRepository) upsert(ctx context.Context, db execer, execution *models.ExecutionRequest) error {
	inputJSON, err := json.Marshal(nonNilParams(execution.InputParams))
	if err != nil {
		return fmt.Errorf("failed to marshal input params: %w", err)
	}

	outputJSON, err := json.Marshal(nonNilParams(execution.OutputParams))
	if err != nil {
		return fmt.Errorf("failed to marshal output params: %w", err)
	}

	query := `
		INSERT INTO execution_requests (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (exec_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			name = EXCLUDED.name,
			func_name = EXCLUDED.func_name,
			step = EXCLUDED.step,
			status = EXCLUDED.status,
			action = EXCLUDED.action,
			input_params = EXCLUDED.input_params,
			output_params = EXCLUDED.output_params,
			log = EXCLUDED.log,
			resource_id = EXCLUDED.resource_id,
			last_updated = EXCLUDED.last_updated,
			finished = EXCLUDED.finished
	`

	_, err = db.ExecContext(ctx, query,
		execution.ExecID,
		execution.User,
		execution.Name,
		execution.FuncName,
		execution.Step,
		execution.Status,
		execution.Action,
		inputJSON,
		outputJSON,
		execution.Log,
		execution.ResourceID,
		execution.Created,
		execution.LastUpdated,
		execution.Finished,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution request: %w", err)
	}

	return nil
}

// GetByID retrieves an execution request by id.
func (r *ExecutionRequestRepository) GetByID(ctx context.Context, execID string) (*models.ExecutionRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_requests WHERE exec_id = $1`, execID)

	execution, err := scanExecutionRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetByID", "execution_request", execID, persistence.ErrExecutionRequestNotFound)
		}

		return nil, persistence.NewRepositoryError("GetByID", "execution_request", execID, err)
	}

	return execution, nil
}

// Update locks the row, merges the update and writes it back in one transaction.
func (r *ExecutionRequestRepository) Update(ctx context.Context, execID string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error) {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewRepositoryError("Update", "execution_request", execID, err)
	}

	row := transaction.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_requests WHERE exec_id = $1 FOR UPDATE`, execID)

	execution, err := scanExecutionRequest(row)
	if err != nil {
		_ = transaction.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("Update", "execution_request", execID, persistence.ErrExecutionRequestNotFound)
		}

		return nil, persistence.NewRepositoryError("Update", "execution_request", execID, err)
	}

	update.Apply(execution, time.Now().UTC())

	err = r.upsert(ctx, transaction, execution)
	if err != nil {
		_ = transaction.Rollback()

		return nil, persistence.NewRepositoryError("Update", "execution_request", execID, err)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, persistence.NewRepositoryError("Update", "execution_request", execID, err)
	}

	return execution, nil
}

// CountActiveByUser counts READY and RUNNING executions of user.
func (r *ExecutionRequestRepository) CountActiveByUser(ctx context.Context, user, excludeID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM execution_requests
		WHERE user_name = $1
		  AND status IN ('ready', 'running')
		  AND exec_id <> $2
	`, user, excludeID).Scan(&count)
	if err != nil {
		return 0, persistence.NewRepositoryError("CountActiveByUser", "execution_request", "", err)
	}

	return count, nil
}

func scanExecutionRequest(row scanner) (*models.ExecutionRequest, error) {
	var (
		execution             models.ExecutionRequest
		inputJSON, outputJSON []byte
		finished              sql.NullTime
	)

	err := row.Scan(
		&execution.ExecID,
		&execution.User,
		&execution.Name,
		&execution.FuncName,
		&execution.Step,
		&execution.Status,
		&execution.Action,
		&inputJSON,
		&outputJSON,
		&execution.Log,
		&execution.ResourceID,
		&execution.Created,
		&execution.LastUpdated,
		&finished,
	)
	if err != nil {
		return nil, err
	}

	execution.InputParams = models.Params{}
	execution.OutputParams = models.Params{}

	if inputJSON != nil {
		err := json.Unmarshal(inputJSON, &execution.InputParams)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input params: %w", err)
		}
	}

	if outputJSON != nil {
		err := json.Unmarshal(outputJSON, &execution.OutputParams)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output params: %w", err)
		}
	}

	if finished.Valid {
		execution.Finished = &finished.Time
	}

	return &execution, nil
}

func nonNilParams(p models.Params) models.Params {
	if p == nil {
		return models.Params{}
	}

	return p
}
