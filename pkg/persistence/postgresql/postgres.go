// Package postgresql provides the PostgreSQL persistence implementation for the import pipeline.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	executions   *ExecutionRequestRepository
	resources    *ResourceRepository
	handlerInfos *ResourceHandlerInfoRepository
	schemas      *DynamicSchemaRepository
	taskResults  *TaskResultRepository
	uploads      *UploadRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and applies pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return newPersistence(database, logger), nil
}

func newPersistence(database *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:           database,
		logger:       logger,
		executions:   NewExecutionRequestRepository(database, logger),
		resources:    NewResourceRepository(database, logger),
		handlerInfos: NewResourceHandlerInfoRepository(database, logger),
		schemas:      NewDynamicSchemaRepository(database, logger),
		taskResults:  NewTaskResultRepository(database, logger),
		uploads:      NewUploadRepository(database, logger),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// DB exposes the underlying connection pool, shared with the dynamic table editor.
func (p *Persistence) DB() *sql.DB {
	return p.db
}

func (p *Persistence) ExecutionRequestRepository() persistence.ExecutionRequestRepository {
	return p.executions
}

func (p *Persistence) ResourceRepository() persistence.ResourceRepository {
	return p.resources
}

func (p *Persistence) ResourceHandlerInfoRepository() persistence.ResourceHandlerInfoRepository {
	return p.handlerInfos
}

func (p *Persistence) DynamicSchemaRepository() persistence.DynamicSchemaRepository {
	return p.schemas
}

func (p *Persistence) TaskResultRepository() persistence.TaskResultRepository {
	return p.taskResults
}

func (p *Persistence) UploadRepository() persistence.UploadRepository {
	return p.uploads
}

type scanner interface {
	Scan(dest ...any) error
}

// closeRows closes rows and logs a failure.
func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
