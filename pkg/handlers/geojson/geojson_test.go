package geojson

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		valid bool
	}{
		{name: "feature collection", data: `{"type": "FeatureCollection", "features": [{"type": "Feature", "geometry": null, "properties": {}}]}`, valid: true},
		{name: "single feature", data: `{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]}}`, valid: true},
		{name: "collection without features", data: `{"type": "FeatureCollection"}`},
		{name: "bare geometry", data: `{"type": "Point", "coordinates": [0, 0]}`},
		{name: "feature without geometry", data: `{"type": "FeatureCollection", "features": [{"type": "Feature"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEnvelope([]byte(tt.data))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestHandler_IsValid(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	h := New(&common.Deps{})

	good := filepath.Join(dir, "roads.geojson")
	require.NoError(t, os.WriteFile(good, []byte(`{"type": "FeatureCollection", "features": []}`), 0o600))
	require.NoError(t, h.IsValid(ctx, map[string]string{"base_file": good}, "admin", "exec-1"))

	dotted := filepath.Join(dir, "roads.v1.geojson")
	require.NoError(t, os.WriteFile(dotted, []byte(`{"type": "FeatureCollection", "features": []}`), 0o600))

	var validationErr *handlers.ValidationError

	err := h.IsValid(ctx, map[string]string{"base_file": dotted}, "admin", "exec-1")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, handlers.ValidationGeoJSON, validationErr.Kind)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"type": "Point"}`), 0o600))

	err = h.IsValid(ctx, map[string]string{"base_file": broken}, "admin", "exec-1")
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Detail, "Invalid GeoJSON")
}

func TestHandler_Ogr2OgrArgs_NamesTheGeometryColumn(t *testing.T) {
	h := New(&common.Deps{})

	args, err := h.Ogr2OgrArgs(context.Background(), map[string]string{"base_file": "/tmp/roads.geojson"}, "roads", false, "roads")
	require.NoError(t, err)

	assert.Equal(t, []string{"-lco", "GEOMETRY_NAME=geometry"}, args[len(args)-2:])
}
