package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/persistence/postgresql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{
		"uploads", "task_results", "field_schemas", "model_schemas",
		"resource_handler_infos", "resources", "execution_requests", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("geoimporter_test"),
			postgres.WithUsername("geoimporter"),
			postgres.WithPassword("geoimporter"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx := setupTestDB(t)

	var version int

	err := p.DB().QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.NoError(t, p.HealthCheck(ctx))
}

func TestExecutionRequestRepository_Lifecycle(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.ExecutionRequestRepository()
	now := time.Now().UTC().Truncate(time.Microsecond)

	execution := &models.ExecutionRequest{
		ExecID:      uuid.New().String(),
		User:        "alice",
		FuncName:    "start_import",
		Step:        "start_import",
		Status:      models.ExecutionStatusReady,
		Action:      models.ActionImport,
		InputParams: models.Params{"files": map[string]any{"base_file": "/data/valid.gpkg"}, "handler_module_path": "importer.handlers.gpkg.GPKGFileHandler"},
		Created:     now,
		LastUpdated: now,
	}
	require.NoError(t, repo.Save(ctx, execution))

	updated, err := repo.Update(ctx, execution.ExecID, persistence.ExecutionUpdate{
		Status:       persistence.Ptr(models.ExecutionStatusRunning),
		OutputParams: map[string]any{"errors": []string{"first"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, updated.Status)

	retrieved, err := repo.GetByID(ctx, execution.ExecID)
	require.NoError(t, err)
	assert.Equal(t, "importer.handlers.gpkg.GPKGFileHandler", retrieved.HandlerKey())
	assert.Equal(t, []string{"first"}, retrieved.Errors())

	count, err := repo.CountActiveByUser(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResourceRepository_CascadeHandlerInfos(t *testing.T) {
	p, ctx := setupTestDB(t)
	now := time.Now().UTC()

	resource := &models.Resource{
		ID:           uuid.New().String(),
		Alternate:    "geonode:stazioni",
		Name:         "stazioni",
		Title:        "stazioni",
		Owner:        "alice",
		ResourceType: models.ResourceTypeDataset,
		Subtype:      models.SubtypeVector,
		BBox:         []float64{1, 2, 3, 4},
		Links:        []models.Link{{Name: "x", URL: "http://example.com", LinkType: "data"}},
		Created:      now,
		LastUpdated:  now,
	}
	require.NoError(t, p.ResourceRepository().Save(ctx, resource))

	info := &models.ResourceHandlerInfo{
		ID:                uuid.New().String(),
		ResourceID:        resource.ID,
		HandlerModulePath: "importer.handlers.gpkg.GPKGFileHandler",
		ExecutionID:       "exec-1",
		Kwargs:            models.Params{"is_dynamic_model_managed": false},
		Created:           now,
	}
	require.NoError(t, p.ResourceHandlerInfoRepository().Save(ctx, info))

	found, err := p.ResourceRepository().SearchByAlternateOrTitle(ctx, "stazioni")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, []float64{1, 2, 3, 4}, found[0].BBox)

	require.NoError(t, p.ResourceRepository().Delete(ctx, resource.ID))

	infos, err := p.ResourceHandlerInfoRepository().ListByResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestDynamicSchemaRepository_CascadeFields(t *testing.T) {
	p, ctx := setupTestDB(t)
	repo := p.DynamicSchemaRepository()

	require.NoError(t, repo.SaveSchema(ctx, &models.ModelSchema{ID: "s1", Name: "stazioni", DBName: "datastore", DBTableName: "stazioni"}))
	require.NoError(t, repo.CreateFields(ctx, []*models.FieldSchema{
		{ID: "f1", ModelSchemaID: "s1", Name: "name", ClassName: "CharField", Kwargs: models.Params{"max_length": 255}},
	}))

	field, err := repo.GetField(ctx, "s1", "name")
	require.NoError(t, err)
	assert.Equal(t, 255, field.Kwargs.Int("max_length"))

	require.NoError(t, repo.DeleteSchema(ctx, "s1"))

	fields, err := repo.ListFields(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, fields)
}
