package common

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/dynamicschema"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/persistence/file"
	"github.com/dukex/geoimporter/pkg/taskqueue"
	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutions struct {
	mu         sync.Mutex
	executions map[string]*models.ExecutionRequest
	evaluated  []string
}

func newFakeExecutions(executions ...*models.ExecutionRequest) *fakeExecutions {
	f := &fakeExecutions{executions: map[string]*models.ExecutionRequest{}}
	for _, e := range executions {
		f.executions[e.ExecID] = e
	}

	return f
}

func (f *fakeExecutions) GetExecution(_ context.Context, executionID string) (*models.ExecutionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	execution, ok := f.executions[executionID]
	if !ok {
		return nil, &handlers.ImportError{Detail: "The selected UUID does not exists"}
	}

	return execution, nil
}

func (f *fakeExecutions) UpdateExecutionRequestStatus(_ context.Context, executionID string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	execution := f.executions[executionID]
	update.Apply(execution, time.Now())

	return execution, nil
}

func (f *fakeExecutions) EvaluateExecutionProgress(_ context.Context, executionID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.evaluated = append(f.evaluated, executionID)

	return nil
}

type fakeDispatcher struct {
	signatures []taskqueue.Signature
	chords     []taskqueue.Chord
	err        error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, sig taskqueue.Signature) (string, error) {
	if d.err != nil {
		return "", d.err
	}

	d.signatures = append(d.signatures, sig)

	return "task-id", nil
}

func (d *fakeDispatcher) DispatchChord(_ context.Context, chord taskqueue.Chord) error {
	if d.err != nil {
		return d.err
	}

	d.chords = append(d.chords, chord)

	return nil
}

type fixture struct {
	deps       *Deps
	executions *fakeExecutions
	dispatcher *fakeDispatcher
	tables     *dynamicschema.MemoryTableEditor
	maps       *mapserver.MemoryClient
}

func newFixture(t *testing.T, executions ...*models.ExecutionRequest) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	tables := dynamicschema.NewMemoryTableEditor()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		executions: newFakeExecutions(executions...),
		dispatcher: &fakeDispatcher{},
		tables:     tables,
		maps:       mapserver.NewMemoryClient(),
	}

	f.deps = &Deps{
		Executions:    f.executions,
		Dispatcher:    f.dispatcher,
		Resources:     store.ResourceRepository(),
		HandlerInfos:  store.ResourceHandlerInfoRepository(),
		TaskResults:   store.TaskResultRepository(),
		Schemas:       dynamicschema.New(store.DynamicSchemaRepository(), tables, logger),
		Catalog:       catalog.New(store.ResourceRepository(), store.ResourceHandlerInfoRepository(), "http://localhost", logger),
		MapServer:     f.maps,
		Workspace:     "geonode",
		DatastoreName: "geoimporter",
		Logger:        logger,
	}

	return f
}

func (f *fixture) base(key string) Base {
	return NewBase(f.deps, key, 10, map[models.Action][]string{
		models.ActionImport:   handlers.VectorImportSteps,
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{ID: "gpkg", Ext: []string{"gpkg"}})
}

func TestShouldBeImported(t *testing.T) {
	existing := testutil.CreateTestResource()

	assert.True(t, ShouldBeImported(nil, true))
	assert.True(t, ShouldBeImported(nil, false))
	assert.True(t, ShouldBeImported(existing, false))
	assert.False(t, ShouldBeImported(existing, true))
}

func TestBase_ResolveAlternate(t *testing.T) {
	ctx := context.Background()
	executionID := "2a1f0c6e-51a4-4b9e-9f0a-7c1d3e4b5a60"

	f := newFixture(t)
	b := f.base("test.Handler")

	taken := testutil.CreateTestResource(testutil.WithAlternate("geonode:taken"), testutil.WithOwner("someone"))
	require.NoError(t, f.deps.Resources.Save(ctx, taken))

	_, err := f.deps.Schemas.EnsureSchema(ctx, "schema_only")
	require.NoError(t, err)

	owned := testutil.CreateTestResource(testutil.WithAlternate("geonode:mine"))

	tests := []struct {
		name      string
		existing  *models.Resource
		layer     string
		override  bool
		alternate string
	}{
		{name: "free name is kept", layer: "roads", alternate: "roads"},
		{name: "alternate used by another resource", layer: "taken", alternate: handlers.CreateAlternate("taken", executionID)},
		{name: "schema already defined", layer: "schema_only", alternate: handlers.CreateAlternate("schema_only", executionID)},
		{name: "override reuses the existing layer", existing: owned, layer: "mine", override: true, alternate: "mine"},
		{name: "existing without override gets a new name", existing: owned, layer: "mine", alternate: handlers.CreateAlternate("mine", executionID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alternate, err := b.ResolveAlternate(ctx, tt.existing, tt.layer, executionID, tt.override)
			require.NoError(t, err)

			assert.Equal(t, tt.alternate, alternate)
		})
	}
}

func TestSplitPayload(t *testing.T) {
	payload := handlers.Payload{
		"base_file":            "/tmp/a.gpkg",
		"skip_existing_layers": true,
		"store_spatial_files":  false,
		"title":                "Roads",
	}

	extracted, remaining := SplitPayload(payload, models.ActionImport, importParams...)

	assert.Equal(t, true, extracted[models.ParamSkipExistingLayers])
	assert.Equal(t, false, extracted[models.ParamStoreSpatialFile])
	assert.Equal(t, "upload", extracted[models.ParamSource])
	assert.Equal(t, "/tmp/a.gpkg", remaining["base_file"])
	assert.NotContains(t, remaining, "store_spatial_files")

	extracted, remaining = SplitPayload(payload, models.ActionCopy, importParams...)

	assert.Equal(t, handlers.Payload{"title": "Roads"}, extracted)
	assert.Contains(t, remaining, "skip_existing_layers")
}

func TestCheckBaseFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "roads.geojson")
	dotted := filepath.Join(dir, "roads.v2.geojson")

	require.NoError(t, os.WriteFile(plain, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(dotted, []byte("{}"), 0o600))

	require.NoError(t, CheckBaseFile(handlers.ValidationGeoJSON, map[string]string{"base_file": plain}, true))
	require.NoError(t, CheckBaseFile(handlers.ValidationGeoJSON, map[string]string{"base_file": dotted}, false))

	var validationErr *handlers.ValidationError

	err := CheckBaseFile(handlers.ValidationGeoJSON, map[string]string{"base_file": dotted}, true)
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "Please remove the additional dots in the filename", validationErr.Detail)

	err = CheckBaseFile(handlers.ValidationGeoJSON, map[string]string{}, false)
	require.ErrorAs(t, err, &validationErr)

	err = CheckBaseFile(handlers.ValidationGeoJSON, map[string]string{"base_file": filepath.Join(dir, "missing.geojson")}, false)
	require.ErrorAs(t, err, &validationErr)
}

func TestBase_CreateErrorLog(t *testing.T) {
	f := newFixture(t)
	b := f.base("test.Handler")

	msg := b.CreateErrorLog(errors.New("boom"), handlers.TaskPublishResource, "roads")

	assert.Equal(t, "Task: importer.publish_resource raised an error during actions for layer: roads: boom", msg)
}

func TestVector_ImportResource_DispatchesOneChordPerLayer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := testutil.WriteGeoPackage(t, dir, "stations.gpkg",
		testutil.GeoPackageLayer{Name: "stations", Features: 2, Columns: []string{"label TEXT"}},
		testutil.GeoPackageLayer{Name: "lines", GeometryType: "LINESTRING", Features: 1},
	)

	execution := testutil.CreateTestExecution(testutil.WithFiles(map[string]string{"base_file": path}))
	f := newFixture(t, execution)

	v := NewVector(f.base("test.Vector"), handlers.ValidationGeoPackage, dataset.GeoPackageInspector{}, nil)

	err := v.ImportResource(ctx, execution.Files(), execution.ExecID)
	require.NoError(t, err)

	require.Len(t, f.dispatcher.chords, 2)
	assert.Empty(t, f.executions.evaluated)
	assert.Equal(t, 2, execution.InputParams.Int(models.ParamTotalLayers))

	chord := f.dispatcher.chords[1]
	last := chord.Header[len(chord.Header)-1]

	assert.Equal(t, handlers.TaskImportWithOgr2ogr, last.Name)
	assert.Equal(t, []string{execution.ExecID, "stations", "test.Vector", "false", "stations"}, last.Args)
	require.NotNil(t, last.LinkError)
	assert.Equal(t, handlers.TaskDynamicModelErrorCallback, last.LinkError.Name)

	assert.Equal(t, handlers.TaskCreateDynamicStructure, chord.Header[0].Name)
	assert.Equal(t, handlers.TaskImportNextStep, chord.Body.Name)
	assert.Equal(t, []string{execution.ExecID, "test.Vector", handlers.TaskImportResource, "stations", "stations"}, chord.Body.Args)

	exists, err := f.deps.Schemas.Exists(ctx, "stations")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestVector_ImportResource_SkipsExistingLayers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := testutil.WriteGeoPackage(t, dir, "stations.gpkg", testutil.GeoPackageLayer{Name: "stations", Features: 1})

	execution := testutil.CreateTestExecution(
		testutil.WithFiles(map[string]string{"base_file": path}),
		testutil.WithInput(models.ParamSkipExistingLayers, true),
	)
	f := newFixture(t, execution)

	require.NoError(t, f.deps.Resources.Save(ctx, testutil.CreateTestResource(testutil.WithAlternate("geonode:stations"))))

	v := NewVector(f.base("test.Vector"), handlers.ValidationGeoPackage, dataset.GeoPackageInspector{}, nil)

	err := v.ImportResource(ctx, execution.Files(), execution.ExecID)
	require.NoError(t, err)

	assert.Empty(t, f.dispatcher.chords)
	assert.Equal(t, []string{execution.ExecID}, f.executions.evaluated)
}

func TestVector_ImportResource_DropsSchemaWhenDispatchFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := testutil.WriteGeoPackage(t, dir, "stations.gpkg", testutil.GeoPackageLayer{Name: "stations", Features: 1})

	execution := testutil.CreateTestExecution(testutil.WithFiles(map[string]string{"base_file": path}))
	f := newFixture(t, execution)
	f.dispatcher.err = errors.New("broker down")

	v := NewVector(f.base("test.Vector"), handlers.ValidationGeoPackage, dataset.GeoPackageInspector{}, nil)

	err := v.ImportResource(ctx, execution.Files(), execution.ExecID)
	require.Error(t, err)

	exists, err := f.deps.Schemas.Exists(ctx, "stations")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVector_CreateResource_RegistersVectorDataset(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	path := testutil.WriteGeoPackage(t, dir, "stations.gpkg", testutil.GeoPackageLayer{Name: "stations", Features: 1, SRSID: 3857})

	execution := testutil.CreateTestExecution(testutil.WithFiles(map[string]string{"base_file": path}))
	f := newFixture(t, execution)

	v := NewVector(f.base("test.Vector"), handlers.ValidationGeoPackage, dataset.GeoPackageInspector{}, nil)

	resource, err := v.CreateResource(ctx, "stations", "stations", execution.ExecID)
	require.NoError(t, err)

	assert.Equal(t, "geonode:stations", resource.Alternate)
	assert.Equal(t, models.SubtypeVector, resource.Subtype)
	assert.Equal(t, "EPSG:3857", resource.SRID)
	assert.Equal(t, "geoimporter", resource.Store)
	assert.False(t, resource.DirtyState)

	stored, err := f.deps.Resources.GetByAlternate(ctx, "geonode:stations")
	require.NoError(t, err)
	assert.Equal(t, resource.ID, stored.ID)
}
