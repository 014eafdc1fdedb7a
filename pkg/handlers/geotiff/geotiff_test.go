package geotiff

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/mocks"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/persistence/file"
	"github.com/dukex/geoimporter/pkg/storage"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gdalinfo struct {
	stdout string
}

func (g gdalinfo) Run(context.Context, string, ...string) ([]byte, []byte, error) {
	return []byte(g.stdout), nil, nil
}

type executions struct {
	execution *models.ExecutionRequest
	evaluated int
}

func (e *executions) GetExecution(context.Context, string) (*models.ExecutionRequest, error) {
	return e.execution, nil
}

func (e *executions) UpdateExecutionRequestStatus(_ context.Context, _ string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error) {
	update.Apply(e.execution, time.Now())

	return e.execution, nil
}

func (e *executions) EvaluateExecutionProgress(context.Context, string, string) error {
	e.evaluated++

	return nil
}

type fixture struct {
	handler    *Handler
	store      *file.Persistence
	executions *executions
	dispatcher *mocks.MockDispatcher
	maps       *mapserver.MemoryClient
	execution  *models.ExecutionRequest
	raster     string
}

func writeRaster(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("II*\x00"), 0o600))

	return path
}

func newFixture(t *testing.T, epsg string, overrides ...func(*models.ExecutionRequest)) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	raster := writeRaster(t, t.TempDir(), "dem.tif")

	overrides = append([]func(*models.ExecutionRequest){testutil.WithFiles(map[string]string{"base_file": raster})}, overrides...)
	execution := testutil.CreateTestExecution(overrides...)

	f := &fixture{
		store:      store,
		executions: &executions{execution: execution},
		dispatcher: &mocks.MockDispatcher{},
		maps:       mapserver.NewMemoryClient(),
		execution:  execution,
		raster:     raster,
	}

	stdout := `{"description": "dem.tif", "bands": [{}]}`
	if epsg != "" {
		stdout = `{"description": "dem.tif", "stac": {"proj:epsg": ` + epsg + `}, "bands": [{}]}`
	}

	f.handler = New(&common.Deps{
		Executions:   f.executions,
		Dispatcher:   f.dispatcher,
		Resources:    store.ResourceRepository(),
		HandlerInfos: store.ResourceHandlerInfoRepository(),
		TaskResults:  store.TaskResultRepository(),
		Catalog:      catalog.New(store.ResourceRepository(), store.ResourceHandlerInfoRepository(), "http://localhost", logger),
		MapServer:    f.maps,
		Storage:      storage.New(t.TempDir()),
		Runner:       gdalinfo{stdout: stdout},
		Workspace:    "geonode",
		Logger:       logger,
	})

	t.Cleanup(func() { f.dispatcher.AssertExpectations(t) })

	return f
}

func TestHandler_CanHandle(t *testing.T) {
	h := New(&common.Deps{})

	for _, name := range []string{"dem.tif", "dem.tiff", "dem.geotiff", "DEM.TIF"} {
		assert.True(t, h.CanHandle(handlers.Payload{"base_file": "/tmp/" + name}), name)
	}

	assert.False(t, h.CanHandle(handlers.Payload{"base_file": "/tmp/dem.shp"}))
	assert.Equal(t, "raster", h.ExtensionConfig().Format)
}

func TestHandler_IsValid(t *testing.T) {
	dir := t.TempDir()
	h := New(&common.Deps{})

	require.NoError(t, h.IsValid(context.Background(), map[string]string{"base_file": writeRaster(t, dir, "dem.tif")}, "admin", "exec-1"))

	var validationErr *handlers.ValidationError

	err := h.IsValid(context.Background(), map[string]string{"base_file": writeRaster(t, dir, "dem.v2.tif")}, "admin", "exec-1")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, handlers.ValidationGeoTIFF, validationErr.Kind)
}

func TestHandler_ImportResource_GoesStraightToTheNextStep(t *testing.T) {
	f := newFixture(t, "4326")

	f.dispatcher.On("Dispatch", mock.Anything, taskqueue.NewSignature(handlers.TaskImportNextStep,
		f.execution.ExecID, Key, handlers.TaskImportResource, "dem", "dem")).Return("task-id", nil)

	require.NoError(t, f.handler.ImportResource(context.Background(), f.execution.Files(), f.execution.ExecID))
	assert.Zero(t, f.executions.evaluated)
}

func TestHandler_ImportResource_SkipsAnExistingRaster(t *testing.T) {
	f := newFixture(t, "4326", testutil.WithInput(models.ParamSkipExistingLayers, true))

	require.NoError(t, f.store.ResourceRepository().Save(context.Background(), testutil.CreateTestResource(testutil.WithAlternate("geonode:dem"))))

	require.NoError(t, f.handler.ImportResource(context.Background(), f.execution.Files(), f.execution.ExecID))
	assert.Equal(t, 1, f.executions.evaluated)
	f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestHandler_CreateResource_RegistersARasterDataset(t *testing.T) {
	f := newFixture(t, "3857")

	resource, err := f.handler.CreateResource(context.Background(), "dem", "dem", f.execution.ExecID)
	require.NoError(t, err)

	assert.Equal(t, "geonode:dem", resource.Alternate)
	assert.Equal(t, models.SubtypeRaster, resource.Subtype)
	assert.Equal(t, "EPSG:3857", resource.SRID)
	assert.Equal(t, "dem", resource.Store)
	assert.Equal(t, []string{f.raster}, resource.Files)
	assert.False(t, resource.DirtyState)
}

func TestHandler_PublishesCoverages(t *testing.T) {
	ctx := context.Background()

	t.Run("with an SRS", func(t *testing.T) {
		f := newFixture(t, "4326")

		targets, err := f.handler.ExtractResourceToPublish(ctx, f.execution.Files(), models.ActionImport, "dem", "dem", nil)
		require.NoError(t, err)
		assert.Equal(t, []handlers.PublishTarget{{Name: "dem", CRS: "EPSG:4326", RasterPath: f.raster}}, targets)

		require.NoError(t, f.handler.PublishResources(ctx, targets, f.maps, nil, "geonode"))
		assert.True(t, f.maps.HasLayer("geonode", "dem"))
	})

	t.Run("without an SRS", func(t *testing.T) {
		f := newFixture(t, "")

		targets, err := f.handler.ExtractResourceToPublish(ctx, f.execution.Files(), models.ActionImport, "dem", "dem", nil)
		require.NoError(t, err)
		assert.Empty(t, targets)
	})

	t.Run("missing raster file", func(t *testing.T) {
		f := newFixture(t, "4326")

		err := f.handler.PublishResources(ctx, []handlers.PublishTarget{{Name: "dem", CRS: "EPSG:4326"}}, f.maps, nil, "geonode")
		require.Error(t, err)
		assert.False(t, f.maps.HasLayer("geonode", "dem"))
	})
}

func TestHandler_CopiesTheRasterFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "4326")

	sidecar := filepath.Join(filepath.Dir(f.raster), "dem.xml")
	require.NoError(t, os.WriteFile(sidecar, []byte("<metadata/>"), 0o600))

	original := testutil.CreateTestResource(testutil.WithAlternate("geonode:dem"), func(r *models.Resource) {
		r.Subtype = models.SubtypeRaster
		r.Files = []string{sidecar, f.raster}
	})
	require.NoError(t, f.store.ResourceRepository().Save(ctx, original))

	location, err := f.handler.CopyOriginalFile(ctx, original, f.execution.ExecID)
	require.NoError(t, err)
	assert.Equal(t, "dem.tif", filepath.Base(location))
	assert.NotEqual(t, f.raster, location)
	assert.FileExists(t, location)

	copied, err := f.handler.CopyResource(ctx, original, f.execution, "dem_copy", models.Params{handlers.KwargNewFileLocation: location})
	require.NoError(t, err)
	assert.Equal(t, "geonode:dem_copy", copied.Alternate)
	assert.Equal(t, "dem_copy", copied.Store)
	assert.Equal(t, []string{location}, copied.Files)
	assert.NotEqual(t, original.ID, copied.ID)

	_, err = f.handler.CopyOriginalFile(ctx, testutil.CreateTestResource(), f.execution.ExecID)
	require.Error(t, err)
}

func TestHandler_PerformLastStep_RecordsTheDetailURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "4326")

	resource, err := f.handler.CreateResource(ctx, "dem", "dem", f.execution.ExecID)
	require.NoError(t, err)
	require.NoError(t, f.handler.CreateResourceHandlerInfo(ctx, resource, f.execution.ExecID, nil))

	require.NoError(t, f.store.TaskResultRepository().SaveResult(ctx, &models.TaskResult{
		TaskID:      "task-1",
		TaskName:    handlers.TaskCreateResource,
		ExecutionID: f.execution.ExecID,
		Status:      models.TaskStateSuccess,
	}))

	require.NoError(t, f.handler.PerformLastStep(ctx, f.execution.ExecID))

	assert.Equal(t, resource.DetailURL, f.execution.OutputParams.String(models.OutputDetailURL))
	assert.NotEmpty(t, resource.DetailURL)

	results, err := f.store.TaskResultRepository().ListByExecution(ctx, f.execution.ExecID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHandler_Compensators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "4326")

	compensators := f.handler.Compensators()
	for _, step := range []string{handlers.TaskImportResource, handlers.TaskPublishResource, handlers.TaskCreateResource, handlers.TaskCopyRasterFile, handlers.TaskCopyResource} {
		assert.Contains(t, compensators, step)
	}

	require.NoError(t, f.maps.PublishCoverage(ctx, "geonode", "dem", f.raster, "EPSG:4326", false))
	require.NoError(t, compensators[handlers.TaskPublishResource](ctx, f.execution.ExecID, "dem", nil))
	assert.False(t, f.maps.HasLayer("geonode", "dem"))

	require.NoError(t, compensators[handlers.TaskCopyRasterFile](ctx, f.execution.ExecID, "dem", nil))
}
