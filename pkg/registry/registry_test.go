package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/handlers/geojson"
	"github.com/dukex/geoimporter/pkg/handlers/gpkg"
	"github.com/dukex/geoimporter/pkg/handlers/remote"
	"github.com/dukex/geoimporter/pkg/handlers/shapefile"
	"github.com/dukex/geoimporter/pkg/handlers/tiles3d"
	"github.com/dukex/geoimporter/pkg/handlers/xml"
	"github.com/dukex/geoimporter/pkg/mapserver"
	"github.com/dukex/geoimporter/pkg/mocks"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence/file"
	"github.com/dukex/geoimporter/pkg/publisher"
	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var taskNames = []string{
	handlers.TaskImportOrchestrator,
	handlers.TaskImportResource,
	handlers.TaskPublishResource,
	handlers.TaskCreateResource,
	handlers.TaskCopyResource,
	handlers.TaskCopyDynamicModel,
	handlers.TaskCopyDataTable,
	handlers.TaskCopyRasterFile,
	handlers.TaskCreateDynamicStructure,
	handlers.TaskImportWithOgr2ogr,
	handlers.TaskImportNextStep,
	handlers.TaskImportMetadata,
	handlers.TaskRollback,
	handlers.TaskDynamicModelErrorCallback,
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBuiltin(t *testing.T) *Registry {
	t.Helper()

	r, err := NewBuiltin(nil, &common.Deps{Logger: testLogger()}, testLogger())
	require.NoError(t, err)

	return r
}

func TestNewBuiltin_RegistersEveryHandler(t *testing.T) {
	r := newBuiltin(t)

	assert.Equal(t, BuiltinKeys(), r.Keys())
	require.NoError(t, r.Validate(taskNames))
}

func TestNewBuiltin_UnknownKey(t *testing.T) {
	_, err := NewBuiltin([]string{"importer.handlers.unknown.Handler"}, &common.Deps{}, testLogger())
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestNewBuiltin_SetsTheLoader(t *testing.T) {
	deps := &common.Deps{}

	r, err := NewBuiltin([]string{" " + gpkg.Key + " "}, deps, testLogger())
	require.NoError(t, err)

	assert.Same(t, r, deps.Loader)
}

// Every step after the sentinel must be undoable by handlers that declare a rollback action.
func TestBuiltinHandlers_Contract(t *testing.T) {
	for _, h := range newBuiltin(t).Handlers() {
		t.Run(h.Key(), func(t *testing.T) {
			actions := h.Actions()
			require.Contains(t, actions, models.ActionImport)

			if _, ok := actions[models.ActionRollback]; !ok {
				return
			}

			rollbacker, ok := h.(handlers.RollbackHandler)
			require.True(t, ok, "declares a rollback action without compensators")

			compensators := rollbacker.Compensators()

			for action, steps := range actions {
				if action == models.ActionRollback {
					continue
				}

				for _, step := range steps[1:] {
					assert.Contains(t, compensators, step, "%s step of %s", step, action)
				}
			}
		})
	}
}

func TestRegistry_Resolve_Precedence(t *testing.T) {
	r := newBuiltin(t)

	tests := []struct {
		name    string
		payload handlers.Payload
		key     string
	}{
		{name: "tileset wins over geojson", payload: handlers.Payload{"base_file": "/data/city/tileset.json"}, key: tiles3d.Key},
		{name: "plain json", payload: handlers.Payload{"base_file": "/data/roads.json"}, key: geojson.Key},
		{name: "shapefile", payload: handlers.Payload{"base_file": "/data/roads.shp"}, key: shapefile.Key},
		{name: "metadata", payload: handlers.Payload{"base_file": "/data/roads.xml"}, key: xml.Key},
		{name: "remote tileset", payload: handlers.Payload{"url": "https://example.com/tileset.json", "type": "3dtiles"}, key: remote.Tiles3DKey},
		{name: "remote service", payload: handlers.Payload{"url": "https://example.com/wms", "type": "wms"}, key: remote.Key},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := r.Resolve(tt.payload)
			require.NotNil(t, h)
			assert.Equal(t, tt.key, h.Key())
		})
	}

	assert.Nil(t, r.Resolve(handlers.Payload{"base_file": "/data/readme.txt"}))
}

func mockHandler(key string, priority int, actions map[models.Action][]string) *mocks.MockHandler {
	h := &mocks.MockHandler{}
	h.On("Key").Return(key)
	h.On("Priority").Return(priority)
	h.On("Actions").Return(actions)

	return h
}

func TestRegistry_Register(t *testing.T) {
	valid := map[models.Action][]string{models.ActionImport: {handlers.StepStartImport, handlers.TaskImportResource}}

	r := NewRegistry(testLogger())
	require.NoError(t, r.Register(mockHandler("test.A", 10, valid)))

	err := r.Register(mockHandler("  test.A ", 10, valid))
	require.ErrorIs(t, err, ErrDuplicateHandler)

	err = r.Register(mockHandler("test.B", 10, map[models.Action][]string{models.ActionImport: {}}))
	require.ErrorIs(t, err, ErrInvalidActionList)

	err = r.Register(mockHandler("test.C", 10, map[models.Action][]string{models.ActionImport: {handlers.TaskImportResource}}))
	require.ErrorIs(t, err, ErrInvalidActionList)
}

func TestRegistry_Validate_RejectsUnknownSteps(t *testing.T) {
	r := NewRegistry(testLogger())
	require.NoError(t, r.Register(mockHandler("test.A", 10, map[models.Action][]string{
		models.ActionImport: {handlers.StepStartImport, "importer.does_not_exist"},
	})))

	err := r.Validate(taskNames)
	require.ErrorIs(t, err, ErrInvalidActionList)
	assert.Contains(t, err.Error(), "importer.does_not_exist")
}

func TestRegistry_Resolve_TiesFollowRegistrationOrder(t *testing.T) {
	actions := map[models.Action][]string{models.ActionImport: {handlers.StepStartImport}}

	first := mockHandler("test.First", 50, actions)
	first.On("CanHandle", mock.Anything).Return(true)

	second := mockHandler("test.Second", 50, actions)
	second.On("CanHandle", mock.Anything).Return(true)

	r := NewRegistry(testLogger())
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	assert.Equal(t, "test.First", r.Resolve(handlers.Payload{}).Key())
}

func TestRegistry_PreDeleteHook(t *testing.T) {
	ctx := context.Background()
	store := file.NewPersistence(t.TempDir())
	resource := testutil.CreateTestResource()

	h := mockHandler("test.Deleter", 10, map[models.Action][]string{models.ActionImport: {handlers.StepStartImport}})
	h.On("DeleteResource", mock.Anything, resource).Return(nil)

	r := NewRegistry(testLogger())
	require.NoError(t, r.Register(h))

	hook := r.PreDeleteHook(store.ResourceHandlerInfoRepository(), mapserver.NewMemoryClient(), publisher.Options{Workspace: "geonode"})

	require.NoError(t, hook(ctx, resource))
	h.AssertNotCalled(t, "DeleteResource", mock.Anything, mock.Anything)

	require.NoError(t, store.ResourceHandlerInfoRepository().Save(ctx, &models.ResourceHandlerInfo{
		ID:                "info-1",
		ResourceID:        resource.ID,
		HandlerModulePath: "test.Deleter",
	}))

	require.NoError(t, hook(ctx, resource))
	h.AssertCalled(t, "DeleteResource", mock.Anything, resource)
}
