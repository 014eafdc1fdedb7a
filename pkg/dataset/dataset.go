// Package dataset inspects source files and reports their layers the way OGR names them.
package dataset

import (
	"context"
	"errors"
	"strings"
)

var ErrNoLayers = errors.New("no layers found in the dataset")

// Geometry type names, as OGR prints them.
const (
	GeometryUnknown    = "Unknown (any)"
	GeometryNone       = "None"
	GeometryCollection = "Geometry Collection"
)

type Field struct {
	Name string `json:"name"`
	// Type is the OGR field type name: Integer, Integer64, Real, String, Date, DateTime, StringList...
	Type string `json:"type"`
}

// Layer is one table of a vector source.
type Layer struct {
	Name           string  `json:"name"`
	GeometryColumn string  `json:"geometry_column"`
	GeometryType   string  `json:"geometry_type"`
	SRS            string  `json:"srs"`
	FeatureCount   int     `json:"feature_count"`
	Fields         []Field `json:"fields"`
}

// HasGeometry reports whether the layer carries a geometry column.
func (l Layer) HasGeometry() bool {
	return l.GeometryType != "" && l.GeometryType != GeometryNone
}

// Inspector lists the layers of a vector file.
type Inspector interface {
	Layers(ctx context.Context, path string) ([]Layer, error)
}

// Raster summarises a raster file.
type Raster struct {
	Name  string
	SRS   string
	Bands int
}

var wkbGeometryNames = map[string]string{
	"POINT":              "Point",
	"LINESTRING":         "Line String",
	"POLYGON":            "Polygon",
	"MULTIPOINT":         "Multi Point",
	"MULTILINESTRING":    "Multi Line String",
	"MULTIPOLYGON":       "Multi Polygon",
	"GEOMETRYCOLLECTION": "Geometry Collection",
	"GEOMETRY":           GeometryUnknown,
}

// GeometryName converts an upper case WKT geometry keyword (POINT, MULTIPOLYGON, ...) to its OGR
// display name, prefixed with "3D " when the geometry has a Z coordinate.
func GeometryName(wkt string, hasZ bool) string {
	name, ok := wkbGeometryNames[strings.ToUpper(strings.TrimSpace(wkt))]
	if !ok {
		return GeometryUnknown
	}

	if hasZ && name != GeometryUnknown {
		return "3D " + name
	}

	return name
}

// EPSGCode formats an EPSG code the way the map server expects it.
func EPSGCode(code string) string {
	if code == "" || code == "0" {
		return ""
	}

	return "EPSG:" + code
}
