package testutil

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// GeoPackageLayer describes one feature table written by WriteGeoPackage.
type GeoPackageLayer struct {
	Name           string
	GeometryColumn string
	// GeometryType is the declared geometry_type_name, POINT by default.
	GeometryType string
	// StoredType overrides the WKB type written in the blobs, to build inconsistent files.
	StoredType string
	SRSID      int
	Features   int
	// Columns are extra attribute columns as "name TYPE" definitions.
	Columns []string
}

var wkbCodes = map[string]uint32{
	"POINT":           1,
	"LINESTRING":      2,
	"POLYGON":         3,
	"MULTIPOINT":      4,
	"MULTILINESTRING": 5,
	"MULTIPOLYGON":    6,
}

// WriteGeoPackage writes a minimal GeoPackage named name in dir and returns its path.
func WriteGeoPackage(t *testing.T, dir, name string, layers ...GeoPackageLayer) string {
	t.Helper()

	path := filepath.Join(dir, name)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	defer db.Close()

	statements := []string{
		"PRAGMA application_id = 1196444487",
		`CREATE TABLE gpkg_spatial_ref_sys (srs_name TEXT NOT NULL, srs_id INTEGER PRIMARY KEY, organization TEXT NOT NULL, organization_coordsys_id INTEGER NOT NULL, definition TEXT NOT NULL, description TEXT)`,
		`INSERT INTO gpkg_spatial_ref_sys VALUES ('WGS 84', 4326, 'EPSG', 4326, 'GEOGCS["WGS 84"]', NULL)`,
		`INSERT INTO gpkg_spatial_ref_sys VALUES ('WGS 84 / Pseudo-Mercator', 3857, 'EPSG', 3857, 'PROJCS["WGS 84 / Pseudo-Mercator"]', NULL)`,
		`CREATE TABLE gpkg_contents (table_name TEXT NOT NULL PRIMARY KEY, data_type TEXT NOT NULL, identifier TEXT, description TEXT DEFAULT '', last_change DATETIME, min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE, srs_id INTEGER)`,
		`CREATE TABLE gpkg_geometry_columns (table_name TEXT NOT NULL, column_name TEXT NOT NULL, geometry_type_name TEXT NOT NULL, srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL)`,
	}

	for _, stmt := range statements {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}

	for _, l := range layers {
		writeLayer(t, db, l)
	}

	return path
}

func writeLayer(t *testing.T, db *sql.DB, l GeoPackageLayer) {
	t.Helper()

	if l.GeometryColumn == "" {
		l.GeometryColumn = "geom"
	}

	if l.GeometryType == "" {
		l.GeometryType = "POINT"
	}

	if l.StoredType == "" {
		l.StoredType = l.GeometryType
	}

	if l.SRSID == 0 {
		l.SRSID = 4326
	}

	columns := append([]string{"fid INTEGER PRIMARY KEY AUTOINCREMENT", quote(l.GeometryColumn) + " " + l.GeometryType}, l.Columns...)

	_, err := db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(l.Name), strings.Join(columns, ", ")))
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)", l.Name, l.Name, l.SRSID)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO gpkg_geometry_columns VALUES (?, ?, ?, ?, 0, 0)", l.Name, l.GeometryColumn, l.GeometryType, l.SRSID)
	require.NoError(t, err)

	for i := range l.Features {
		_, err = db.Exec(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", quote(l.Name), quote(l.GeometryColumn)), pointBlob(wkbCodes[l.StoredType], l.SRSID, float64(i), float64(i)))
		require.NoError(t, err)
	}
}

// pointBlob encodes a GeoPackage geometry blob without envelope. Only the type code varies, the
// coordinates are always a single point.
func pointBlob(code uint32, srsID int, x, y float64) []byte {
	blob := []byte{'G', 'P', 0, 0x01}
	blob = binary.LittleEndian.AppendUint32(blob, uint32(srsID)) // #nosec G115
	blob = append(blob, 0x01)
	blob = binary.LittleEndian.AppendUint32(blob, code)
	blob = binary.LittleEndian.AppendUint64(blob, math.Float64bits(x))
	blob = binary.LittleEndian.AppendUint64(blob, math.Float64bits(y))

	return blob
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
