package file

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecution(id, user string, status models.ExecutionStatus) *models.ExecutionRequest {
	now := time.Now().UTC()

	return &models.ExecutionRequest{
		ExecID:      id,
		User:        user,
		FuncName:    "start_import",
		Step:        "start_import",
		Status:      status,
		Action:      models.ActionImport,
		InputParams: models.Params{"files": map[string]any{"base_file": "/tmp/valid.gpkg"}},
		Created:     now,
		LastUpdated: now,
	}
}

func TestNewPersistence_StripsScheme(t *testing.T) {
	tempDir := t.TempDir()
	p := NewPersistence("file://" + tempDir)

	assert.Equal(t, tempDir, p.root)
	require.NoError(t, p.HealthCheck(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}

func TestPersistence_HealthCheck_MissingRoot(t *testing.T) {
	p := NewPersistence(t.TempDir() + "/missing")

	assert.Error(t, p.HealthCheck(context.Background()))
}

func TestExecutionRequestRepository_SaveGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).ExecutionRequestRepository()

	execution := newTestExecution("2b4c7b47-0c55-4d0a-87a2-3f0b6b0fb0a1", "alice", models.ExecutionStatusReady)
	require.NoError(t, repo.Save(ctx, execution))

	retrieved, err := repo.GetByID(ctx, execution.ExecID)
	require.NoError(t, err)
	assert.Equal(t, "alice", retrieved.User)
	assert.Equal(t, "/tmp/valid.gpkg", retrieved.Files()["base_file"])
	assert.NotNil(t, retrieved.OutputParams)

	updated, err := repo.Update(ctx, execution.ExecID, persistence.ExecutionUpdate{
		Status:       persistence.Ptr(models.ExecutionStatusRunning),
		OutputParams: map[string]any{"errors": []string{"layer failed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, updated.Status)

	reloaded, err := repo.GetByID(ctx, execution.ExecID)
	require.NoError(t, err)
	assert.Equal(t, []string{"layer failed"}, reloaded.Errors())
	assert.Equal(t, "/tmp/valid.gpkg", reloaded.Files()["base_file"])
}

func TestExecutionRequestRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).ExecutionRequestRepository()

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionRequestNotFound(err))

	_, err = repo.Update(ctx, "missing", persistence.ExecutionUpdate{Log: persistence.Ptr("x")})
	assert.True(t, persistence.IsExecutionRequestNotFound(err))
}

func TestExecutionRequestRepository_RejectsPathTraversal(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRequestRepository()

	_, err := repo.GetByID(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, persistence.ErrInvalidID)
}

func TestExecutionRequestRepository_CountActiveByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).ExecutionRequestRepository()

	require.NoError(t, repo.Save(ctx, newTestExecution("e1", "alice", models.ExecutionStatusReady)))
	require.NoError(t, repo.Save(ctx, newTestExecution("e2", "alice", models.ExecutionStatusRunning)))
	require.NoError(t, repo.Save(ctx, newTestExecution("e3", "alice", models.ExecutionStatusFinished)))
	require.NoError(t, repo.Save(ctx, newTestExecution("e4", "bob", models.ExecutionStatusRunning)))

	count, err := repo.CountActiveByUser(ctx, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = repo.CountActiveByUser(ctx, "alice", "e2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResourceRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(t.TempDir())
	repo := p.ResourceRepository()

	resource := &models.Resource{
		ID:        "r1",
		Alternate: "geonode:stazioni",
		Name:      "stazioni",
		Title:     "Stazioni",
		Owner:     "alice",
	}
	require.NoError(t, repo.Save(ctx, resource))

	byAlt, err := repo.GetByAlternate(ctx, "geonode:stazioni")
	require.NoError(t, err)
	assert.Equal(t, "r1", byAlt.ID)

	_, err = repo.FindByOwnerAndAlternate(ctx, "bob", "geonode:stazioni")
	assert.True(t, persistence.IsResourceNotFound(err))

	found, err := repo.SearchByAlternateOrTitle(ctx, "stazioni")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, repo.SetDirtyState(ctx, "r1", true))
	dirty, err := repo.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, dirty.DirtyState)

	require.NoError(t, repo.Delete(ctx, "r1"))
	_, err = repo.GetByID(ctx, "r1")
	assert.True(t, persistence.IsResourceNotFound(err))
}

func TestResourceHandlerInfoRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).ResourceHandlerInfoRepository()

	first := time.Now().UTC()
	require.NoError(t, repo.Save(ctx, &models.ResourceHandlerInfo{ID: "b", ResourceID: "r1", ExecutionID: "e1", HandlerModulePath: "h", Created: first.Add(time.Second)}))
	require.NoError(t, repo.Save(ctx, &models.ResourceHandlerInfo{ID: "a", ResourceID: "r1", ExecutionID: "e2", HandlerModulePath: "h", Created: first}))

	infos, err := repo.ListByResource(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].ID)

	byExec, err := repo.ListByExecution(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, byExec, 1)

	require.NoError(t, repo.DeleteByResource(ctx, "r1"))
	infos, err = repo.ListByResource(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestDynamicSchemaRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).DynamicSchemaRepository()

	schema := &models.ModelSchema{ID: "s1", Name: "stazioni", DBName: "datastore", DBTableName: "stazioni", Managed: false}
	require.NoError(t, repo.SaveSchema(ctx, schema))

	err := repo.CreateFields(ctx, []*models.FieldSchema{
		{ID: "f1", ModelSchemaID: "s1", Name: "name", ClassName: "CharField"},
		{ID: "f2", ModelSchemaID: "s1", Name: "geom", ClassName: "PointField"},
	})
	require.NoError(t, err)

	byName, err := repo.GetSchemaByName(ctx, "stazioni")
	require.NoError(t, err)
	assert.Equal(t, "s1", byName.ID)

	field, err := repo.GetField(ctx, "s1", "name")
	require.NoError(t, err)
	field.ClassName = "TextField"
	require.NoError(t, repo.UpdateField(ctx, field))

	fields, err := repo.ListFields(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, fields, 2)

	require.NoError(t, repo.DeleteSchema(ctx, "s1"))

	_, err = repo.GetSchemaByID(ctx, "s1")
	assert.True(t, persistence.IsModelSchemaNotFound(err))

	fields, err = repo.ListFields(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestDynamicSchemaRepository_CreateFieldsWithoutSchema(t *testing.T) {
	repo := NewPersistence(t.TempDir()).DynamicSchemaRepository()

	err := repo.CreateFields(context.Background(), []*models.FieldSchema{{ID: "f1", ModelSchemaID: "gone", Name: "name"}})
	assert.True(t, persistence.IsModelSchemaNotFound(err))
}

func TestTaskResultRepository_Retention(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).TaskResultRepository()

	old := time.Now().UTC().Add(-96 * time.Hour)
	require.NoError(t, repo.SaveResult(ctx, &models.TaskResult{TaskID: "t1", ExecutionID: "e1", Status: models.TaskStateSuccess, Created: old}))
	require.NoError(t, repo.SaveResult(ctx, &models.TaskResult{TaskID: "t2", ExecutionID: "e1", Status: models.TaskStatePending, Created: time.Now().UTC()}))
	require.NoError(t, repo.SaveResult(ctx, &models.TaskResult{TaskID: "t3", ExecutionID: "e2", Status: models.TaskStatePending, Created: time.Now().UTC()}))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	results, err := repo.ListByExecution(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "t2", results[0].TaskID)

	require.NoError(t, repo.DeleteByExecution(ctx, "e1"))
	results, err = repo.ListByExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = repo.GetResult(ctx, "t3")
	require.NoError(t, err)
}

func TestUploadRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewPersistence(t.TempDir()).UploadRepository()

	require.NoError(t, repo.Save(ctx, &models.Upload{ID: "u1", ExecutionID: "e1", State: models.UploadStateRunning, User: "alice"}))
	require.NoError(t, repo.UpdateByExecution(ctx, "e1", models.UploadStateProcessed, true))

	upload, err := repo.GetByExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.UploadStateProcessed, upload.State)
	assert.True(t, upload.Complete)

	require.NoError(t, repo.DeleteByExecution(ctx, "e1"))
	_, err = repo.GetByExecution(ctx, "e1")
	assert.True(t, persistence.IsUploadNotFound(err))
}
