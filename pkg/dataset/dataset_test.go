package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometryName(t *testing.T) {
	tests := []struct {
		wkt  string
		hasZ bool
		want string
	}{
		{"POINT", false, "Point"},
		{"multipolygon", false, "Multi Polygon"},
		{"LINESTRING", true, "3D Line String"},
		{"GEOMETRY", true, GeometryUnknown},
		{"CIRCULARSTRING", false, GeometryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.wkt, func(t *testing.T) {
			assert.Equal(t, tt.want, GeometryName(tt.wkt, tt.hasZ))
		})
	}
}

func TestGeoPackageInspector_Layers(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteGeoPackage(t, dir, "valid.gpkg",
		testutil.GeoPackageLayer{Name: "stazioni", Features: 3, Columns: []string{"name TEXT", "height REAL", "built DATE"}},
		testutil.GeoPackageLayer{Name: "confini", GeometryType: "MULTIPOLYGON", SRSID: 3857, Features: 1},
	)

	layers, err := GeoPackageInspector{}.Layers(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, "confini", layers[0].Name)
	assert.Equal(t, "Multi Polygon", layers[0].GeometryType)
	assert.Equal(t, "EPSG:3857", layers[0].SRS)

	stazioni := layers[1]
	assert.Equal(t, "geom", stazioni.GeometryColumn)
	assert.Equal(t, "Point", stazioni.GeometryType)
	assert.Equal(t, "EPSG:4326", stazioni.SRS)
	assert.Equal(t, 3, stazioni.FeatureCount)
	assert.Equal(t, []Field{{"name", "String"}, {"height", "Real"}, {"built", "Date"}}, stazioni.Fields)
}

func TestGeoPackageInspector_MissingFile(t *testing.T) {
	_, err := GeoPackageInspector{}.Layers(context.Background(), filepath.Join(t.TempDir(), "missing.gpkg"))
	require.Error(t, err)
}

func TestValidateGeoPackage(t *testing.T) {
	tests := []struct {
		name   string
		layers []testutil.GeoPackageLayer
		want   []string
	}{
		{
			name:   "valid",
			layers: []testutil.GeoPackageLayer{{Name: "stazioni", Features: 1}},
		},
		{
			name:   "bad layer name",
			layers: []testutil.GeoPackageLayer{{Name: "Stazioni-2", Features: 1}},
			want:   []string{"RQ1"},
		},
		{
			name:   "empty layer",
			layers: []testutil.GeoPackageLayer{{Name: "stazioni"}},
			want:   []string{"RQ2"},
		},
		{
			name: "mixed srs",
			layers: []testutil.GeoPackageLayer{
				{Name: "a", Features: 1},
				{Name: "b", Features: 1, SRSID: 3857},
			},
			want: []string{"RQ13"},
		},
		{
			name:   "collection type",
			layers: []testutil.GeoPackageLayer{{Name: "a", Features: 1, GeometryType: "GEOMETRYCOLLECTION"}},
			want:   []string{"RQ14"},
		},
		{
			name:   "stored geometry mismatch",
			layers: []testutil.GeoPackageLayer{{Name: "a", Features: 2, GeometryType: "POLYGON", StoredType: "POINT"}},
			want:   []string{"RQ15"},
		},
		{
			name: "different geometry column names",
			layers: []testutil.GeoPackageLayer{
				{Name: "a", Features: 1},
				{Name: "b", Features: 1, GeometryColumn: "the_geom"},
			},
			want: []string{"RC2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteGeoPackage(t, t.TempDir(), "test.gpkg", tt.layers...)

			violations, err := ValidateGeoPackage(context.Background(), path)
			require.NoError(t, err)
			require.Len(t, violations, len(tt.want))

			for i, code := range tt.want {
				assert.Contains(t, violations[i], code+":")
			}
		})
	}
}

func TestGeoJSONInspector_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parks.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "FeatureCollection",
		"crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3857"}},
		"features": [
			{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}, "properties": {"name": "a", "area": 1, "tags": ["x"]}},
			{"type": "Feature", "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}, "properties": {"name": "b", "area": 2.5, "note": null}}
		]
	}`), 0o600))

	layers, err := GeoJSONInspector{}.Layers(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, layers, 1)

	layer := layers[0]
	assert.Equal(t, "parks", layer.Name)
	assert.Equal(t, "Polygon", layer.GeometryType)
	assert.Equal(t, "geometry", layer.GeometryColumn)
	assert.Equal(t, "EPSG:3857", layer.SRS)
	assert.Equal(t, 2, layer.FeatureCount)
	assert.Equal(t, []Field{{"area", "Real"}, {"name", "String"}, {"note", "String"}, {"tags", "StringList"}}, layer.Fields)
}

type fakeRunner struct {
	stdout string
}

func (f fakeRunner) Run(context.Context, string, ...string) ([]byte, []byte, error) {
	return []byte(f.stdout), nil, nil
}

func TestOgrInfoInspector_Layers(t *testing.T) {
	runner := fakeRunner{stdout: `{"layers": [{
		"name": "Comuni",
		"featureCount": 12,
		"geometryFields": [{"name": "", "type": "Polygon", "coordinateSystem": {"projjson": {"id": {"authority": "EPSG", "code": 32632}}}}],
		"fields": [{"name": "NOME", "type": "String"}, {"name": "POP", "type": "Integer64"}]
	}]}`}

	layers, err := OgrInfoInspector{Runner: runner, Binary: "ogrinfo"}.Layers(context.Background(), "/tmp/comuni.shp")
	require.NoError(t, err)
	require.Len(t, layers, 1)

	assert.Equal(t, "Comuni", layers[0].Name)
	assert.Equal(t, "Polygon", layers[0].GeometryType)
	assert.Equal(t, "EPSG:32632", layers[0].SRS)
	assert.Equal(t, 12, layers[0].FeatureCount)
	assert.Len(t, layers[0].Fields, 2)
}

func TestNormalizeOgrGeometry(t *testing.T) {
	assert.Equal(t, "Multi Polygon", normalizeOgrGeometry("MultiPolygon"))
	assert.Equal(t, "3D Point", normalizeOgrGeometry("Point25D"))
	assert.Equal(t, "3D Line String", normalizeOgrGeometry("LineString Z"))
	assert.Equal(t, GeometryNone, normalizeOgrGeometry("None"))
	assert.Equal(t, GeometryUnknown, normalizeOgrGeometry("Unknown (any)"))
}

func TestEPSGFromWKT(t *testing.T) {
	wkt := `PROJCRS["WGS 84 / UTM zone 32N",BASEGEOGCRS["WGS 84",ID["EPSG",4326]],ID["EPSG",32632]]`
	assert.Equal(t, "EPSG:32632", EPSGFromWKT(wkt))
	assert.Equal(t, "EPSG:3003", EPSGFromWKT(`PROJCS["Monte Mario",AUTHORITY["EPSG","3003"]]`))
	assert.Empty(t, EPSGFromWKT("LOCAL_CS[]"))
}

func TestGdalInfo_Inspect(t *testing.T) {
	raster, err := GdalInfo{Runner: fakeRunner{stdout: `{"description": "dem.tif", "stac": {"proj:epsg": 4326}, "bands": [{}, {}]}`}}.Inspect(context.Background(), "dem.tif")
	require.NoError(t, err)

	assert.Equal(t, "EPSG:4326", raster.SRS)
	assert.Equal(t, 2, raster.Bands)
}
