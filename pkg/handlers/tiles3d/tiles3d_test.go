package tiles3d

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionTileset = `{
  "asset": {"version": "1.0"},
  "geometricError": 500,
  "root": {
    "boundingVolume": {"region": [-1.3197, 0.6988, -1.3196, 0.6989, 0, 20]},
    "geometricError": 100
  }
}`

func TestValidateTileset(t *testing.T) {
	require.NoError(t, ValidateTileset([]byte(regionTileset)))

	rootOnly := `{"asset": {"version": "1.1"}, "root": {"boundingVolume": {"sphere": [0, 0, 0, 1]}, "geometricError": 0}}`
	require.NoError(t, ValidateTileset([]byte(rootOnly)))

	assert.Error(t, ValidateTileset([]byte(`{"root": {"boundingVolume": {}}, "geometricError": 1}`)))
	assert.Error(t, ValidateTileset([]byte(`{"asset": {"version": "1.0"}, "root": {"boundingVolume": {}}}`)))
	assert.Error(t, ValidateTileset([]byte(`{"asset": {"version": "1.0"}, "geometricError": 1}`)))
}

func TestBoundingBox_Region(t *testing.T) {
	bbox, err := BoundingBox([]byte(regionTileset))
	require.NoError(t, err)
	require.Len(t, bbox, 4)

	assert.InDelta(t, -1.3197*180/math.Pi, bbox[0], 1e-9)
	assert.InDelta(t, 0.6988*180/math.Pi, bbox[1], 1e-9)
	assert.InDelta(t, -1.3196*180/math.Pi, bbox[2], 1e-9)
	assert.InDelta(t, 0.6989*180/math.Pi, bbox[3], 1e-9)
}

func TestBoundingBox_SphereOnTheEquator(t *testing.T) {
	// 1km sphere centred on lon 0, lat 0.
	bbox, err := BoundingBox([]byte(`{"root": {"boundingVolume": {"sphere": [6378137, 0, 0, 1000]}}}`))
	require.NoError(t, err)

	assert.Less(t, bbox[0], 0.0)
	assert.Greater(t, bbox[2], 0.0)
	assert.InDelta(t, 0, (bbox[0]+bbox[2])/2, 1e-6)
	assert.InDelta(t, 0, (bbox[1]+bbox[3])/2, 1e-6)
	assert.InDelta(t, 0.009, bbox[2], 0.001)
}

func TestBoundingBox_Missing(t *testing.T) {
	_, err := BoundingBox([]byte(`{"root": {"boundingVolume": {}}}`))
	require.ErrorIs(t, err, ErrNoBoundingVolume)
}

func TestHandler_CanHandle(t *testing.T) {
	h := New(&common.Deps{})

	assert.True(t, h.CanHandle(handlers.Payload{"base_file": "/tmp/city/tileset.json"}))
	assert.False(t, h.CanHandle(handlers.Payload{"base_file": "/tmp/city/roads.json"}))
	assert.False(t, h.CanHandle(handlers.Payload{"base_file": "/tmp/city/tileset.gpkg"}))
}

func TestLayerName(t *testing.T) {
	withTitle := testutil.CreateTestExecution(testutil.WithInput(models.ParamTitle, "My City"))
	assert.Equal(t, "My City", layerName(withTitle))

	withZip := testutil.CreateTestExecution(testutil.WithInput(models.ParamOriginalZipName, "buildings.zip"))
	assert.Equal(t, "buildings", layerName(withZip))

	withDir := testutil.CreateTestExecution(testutil.WithFiles(map[string]string{"base_file": "/data/uploads/city/tileset.json"}))
	assert.Equal(t, "city", layerName(withDir))
}

func TestHandler_IsValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tileset.json")
	require.NoError(t, os.WriteFile(path, []byte(regionTileset), 0o600))

	h := New(&common.Deps{})
	require.NoError(t, h.IsValid(context.Background(), map[string]string{"base_file": path}, "admin", "exec-1"))

	require.NoError(t, os.WriteFile(path, []byte(`{"asset": {}}`), 0o600))

	var validationErr *handlers.ValidationError

	err := h.IsValid(context.Background(), map[string]string{"base_file": path}, "admin", "exec-1")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, handlers.Validation3DTiles, validationErr.Kind)
}
