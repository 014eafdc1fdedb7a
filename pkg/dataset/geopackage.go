package dataset

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// GeoPackageInspector reads GeoPackage metadata tables directly; a GeoPackage is an SQLite database.
type GeoPackageInspector struct{}

func openGeoPackage(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open geopackage %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geopackage %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

type gpkgLayer struct {
	name       string
	column     string
	geomType   string
	hasZ       bool
	srsID      int
	definition string
}

func readGeoPackageLayers(ctx context.Context, db *sql.DB) ([]gpkgLayer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.table_name,
		       COALESCE(g.column_name, ''),
		       COALESCE(g.geometry_type_name, ''),
		       COALESCE(g.z, 0),
		       COALESCE(g.srs_id, c.srs_id, 0)
		FROM gpkg_contents c
		LEFT JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to read gpkg_contents: %w", err)
	}
	defer rows.Close()

	var layers []gpkgLayer

	for rows.Next() {
		var (
			l gpkgLayer
			z int
		)

		err = rows.Scan(&l.name, &l.column, &l.geomType, &z, &l.srsID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gpkg_contents: %w", err)
		}

		l.hasZ = z == 1

		layers = append(layers, l)
	}

	return layers, rows.Err()
}

func (GeoPackageInspector) Layers(ctx context.Context, path string) ([]Layer, error) {
	db, err := openGeoPackage(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	raw, err := readGeoPackageLayers(ctx, db)
	if err != nil {
		return nil, err
	}

	layers := make([]Layer, 0, len(raw))

	for _, l := range raw {
		layer := Layer{
			Name:           l.name,
			GeometryColumn: l.column,
			GeometryType:   GeometryName(l.geomType, l.hasZ),
		}

		if l.column == "" {
			layer.GeometryType = GeometryNone
		}

		layer.SRS, err = geoPackageSRS(ctx, db, l.srsID)
		if err != nil {
			return nil, err
		}

		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(l.name)).Scan(&layer.FeatureCount) // #nosec G202
		if err != nil {
			return nil, fmt.Errorf("failed to count features of %s: %w", l.name, err)
		}

		layer.Fields, err = geoPackageFields(ctx, db, l.name, l.column)
		if err != nil {
			return nil, err
		}

		layers = append(layers, layer)
	}

	return layers, nil
}

func geoPackageSRS(ctx context.Context, db *sql.DB, srsID int) (string, error) {
	if srsID <= 0 {
		return "", nil
	}

	var (
		organization string
		code         int
	)

	err := db.QueryRowContext(ctx,
		"SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?", srsID,
	).Scan(&organization, &code)
	if errors.Is(err, sql.ErrNoRows) {
		return EPSGCode(strconv.Itoa(srsID)), nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to read srs %d: %w", srsID, err)
	}

	if !strings.EqualFold(organization, "epsg") {
		return fmt.Sprintf("%s:%d", strings.ToUpper(organization), code), nil
	}

	return EPSGCode(strconv.Itoa(code)), nil
}

func geoPackageFields(ctx context.Context, db *sql.DB, table, geometryColumn string) ([]Field, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var fields []Field

	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue sql.NullString
			pk       int
		)

		err = rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pk)
		if err != nil {
			return nil, fmt.Errorf("failed to scan columns of %s: %w", table, err)
		}

		if strings.EqualFold(name, geometryColumn) || (pk == 1 && strings.EqualFold(typ, "INTEGER")) {
			continue
		}

		fields = append(fields, Field{Name: name, Type: sqliteFieldType(typ)})
	}

	return fields, rows.Err()
}

func sqliteFieldType(declared string) string {
	typ := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(typ, '('); i >= 0 {
		typ = typ[:i]
	}

	switch typ {
	case "INTEGER", "INT":
		return "Integer64"
	case "MEDIUMINT", "SMALLINT", "TINYINT", "BOOLEAN":
		return "Integer"
	case "FLOAT", "DOUBLE", "REAL":
		return "Real"
	case "DATE":
		return "Date"
	case "DATETIME":
		return "DateTime"
	case "BLOB":
		return "Binary"
	default:
		return "String"
	}
}

var layerNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var allowedGeometryTypes = []string{"POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTILINESTRING", "MULTIPOLYGON"}

var wkbTypeNames = map[uint32]string{
	1: "POINT",
	2: "LINESTRING",
	3: "POLYGON",
	4: "MULTIPOINT",
	5: "MULTILINESTRING",
	6: "MULTIPOLYGON",
	7: "GEOMETRYCOLLECTION",
}

// ValidateGeoPackage runs the structural checks required before import and returns one message per
// violated rule, in rule order. An empty result means the file is acceptable.
//
//	RQ1  layer names start with a letter and use only lowercase a-z, digits and underscores
//	RQ2  layers have at least one feature
//	RQ13 every geometry column shares the same spatial reference system
//	RQ14 geometry_type_name is a simple or multi geometry type
//	RQ15 stored geometries match the declared geometry_type_name
//	RC2  every geometry column has the same name
func ValidateGeoPackage(ctx context.Context, path string) ([]string, error) {
	db, err := openGeoPackage(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	layers, err := readGeoPackageLayers(ctx, db)
	if err != nil {
		return nil, err
	}

	var (
		badNames, emptyLayers, badTypes, mismatched []string
		srsIDs                                      = map[int]bool{}
		columns                                     = map[string]bool{}
	)

	for _, l := range layers {
		if !layerNamePattern.MatchString(l.name) {
			badNames = append(badNames, l.name)
		}

		var count int

		err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(l.name)).Scan(&count) // #nosec G202
		if err != nil {
			return nil, fmt.Errorf("failed to count features of %s: %w", l.name, err)
		}

		if count == 0 {
			emptyLayers = append(emptyLayers, l.name)
		}

		if l.column == "" {
			continue
		}

		srsIDs[l.srsID] = true
		columns[l.column] = true

		if !slices.Contains(allowedGeometryTypes, strings.ToUpper(l.geomType)) {
			badTypes = append(badTypes, fmt.Sprintf("%s (%s)", l.name, l.geomType))

			continue
		}

		stored, err := storedGeometryTypes(ctx, db, l.name, l.column)
		if err != nil {
			return nil, err
		}

		for _, typ := range stored {
			if typ != strings.ToUpper(l.geomType) {
				mismatched = append(mismatched, fmt.Sprintf("%s (%s found in a %s column)", l.name, typ, strings.ToUpper(l.geomType)))

				break
			}
		}
	}

	var violations []string

	if len(badNames) > 0 {
		violations = append(violations, "RQ1: Layer names must start with a letter, and valid characters are lowercase a-z, numbers or underscores. Found: "+strings.Join(badNames, ", "))
	}

	if len(emptyLayers) > 0 {
		violations = append(violations, "RQ2: Layers must have at least one feature. Found: "+strings.Join(emptyLayers, ", "))
	}

	if len(srsIDs) > 1 {
		violations = append(violations, "RQ13: It is required to give all GEOMETRY features the same default spatial reference system")
	}

	if len(badTypes) > 0 {
		violations = append(violations, "RQ14: The geometry_type_name from the gpkg_geometry_columns table must be one of "+strings.Join(allowedGeometryTypes, ", ")+". Found: "+strings.Join(badTypes, ", "))
	}

	if len(mismatched) > 0 {
		violations = append(violations, "RQ15: All table geometries must match the geometry_type_name from the gpkg_geometry_columns table. Found: "+strings.Join(mismatched, ", "))
	}

	if len(columns) > 1 {
		names := make([]string, 0, len(columns))
		for c := range columns {
			names = append(names, c)
		}

		sort.Strings(names)

		violations = append(violations, "RC2: It is recommended to give all GEOMETRY type columns the same name. Found: "+strings.Join(names, ", "))
	}

	return violations, nil
}

func storedGeometryTypes(ctx context.Context, db *sql.DB, table, column string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+quoteIdent(column)+" FROM "+quoteIdent(table)+" WHERE "+quoteIdent(column)+" IS NOT NULL") // #nosec G202
	if err != nil {
		return nil, fmt.Errorf("failed to read geometries of %s: %w", table, err)
	}
	defer rows.Close()

	seen := map[string]bool{}

	var types []string

	for rows.Next() {
		var blob []byte

		err = rows.Scan(&blob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan geometry of %s: %w", table, err)
		}

		typ, ok := geometryBlobType(blob)
		if !ok || seen[typ] {
			continue
		}

		seen[typ] = true
		types = append(types, typ)
	}

	return types, rows.Err()
}

// geometryBlobType decodes the WKB geometry type of a GeoPackage geometry blob.
func geometryBlobType(blob []byte) (string, bool) {
	if len(blob) < 8 || !bytes.Equal(blob[:2], []byte("GP")) {
		return "", false
	}

	flags := blob[3]
	if flags&0x10 != 0 {
		return "", false
	}

	envelope := map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}[(flags>>1)&0x07]

	wkb := blob[8+envelope:]
	if len(wkb) < 5 {
		return "", false
	}

	var order binary.ByteOrder = binary.BigEndian
	if wkb[0] == 1 {
		order = binary.LittleEndian
	}

	code := order.Uint32(wkb[1:5]) & 0x0FFFFFFF

	name, ok := wkbTypeNames[code%1000]

	return name, ok
}
