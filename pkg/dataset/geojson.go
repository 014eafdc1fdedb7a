package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// GeoJSONInspector reads a FeatureCollection directly.
type GeoJSONInspector struct{}

type geoJSONDocument struct {
	Type string `json:"type"`
	Name string `json:"name"`
	CRS  *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
	Features []struct {
		Geometry *struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]json.RawMessage `json:"properties"`
	} `json:"features"`
}

var crsCodePattern = regexp.MustCompile(`EPSG:+(\d+)$`)

var geoJSONGeometryNames = map[string]string{
	"Point":              "POINT",
	"LineString":         "LINESTRING",
	"Polygon":            "POLYGON",
	"MultiPoint":         "MULTIPOINT",
	"MultiLineString":    "MULTILINESTRING",
	"MultiPolygon":       "MULTIPOLYGON",
	"GeometryCollection": "GEOMETRYCOLLECTION",
}

func (GeoJSONInspector) Layers(_ context.Context, path string) ([]Layer, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- staged upload
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson %s: %w", path, err)
	}

	var doc geoJSONDocument

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson %s: %w", path, err)
	}

	layer := Layer{
		Name:         doc.Name,
		SRS:          "EPSG:4326",
		FeatureCount: len(doc.Features),
	}

	if layer.Name == "" {
		base := filepath.Base(path)
		layer.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if doc.CRS != nil {
		if m := crsCodePattern.FindStringSubmatch(doc.CRS.Properties.Name); m != nil {
			layer.SRS = EPSGCode(m[1])
		} else if strings.HasSuffix(doc.CRS.Properties.Name, "CRS84") {
			layer.SRS = "EPSG:4326"
		}
	}

	geometryTypes := map[string]bool{}
	hasZ := false
	seen := map[string]int{}

	for _, feature := range doc.Features {
		if feature.Geometry != nil {
			geometryTypes[feature.Geometry.Type] = true
			hasZ = hasZ || coordinatesHaveZ(feature.Geometry.Coordinates)
		}

		for name, raw := range feature.Properties {
			typ := jsonFieldType(raw)

			idx, ok := seen[name]
			if !ok {
				seen[name] = len(layer.Fields)
				layer.Fields = append(layer.Fields, Field{Name: name, Type: typ})

				continue
			}

			layer.Fields[idx].Type = widenFieldType(layer.Fields[idx].Type, typ)
		}
	}

	switch len(geometryTypes) {
	case 0:
		layer.GeometryType = GeometryNone
	case 1:
		for typ := range geometryTypes {
			layer.GeometryType = GeometryName(geoJSONGeometryNames[typ], hasZ)
		}
	default:
		layer.GeometryType = GeometryUnknown
	}

	if layer.HasGeometry() {
		layer.GeometryColumn = "geometry"
	}

	sortFields(layer.Fields)

	return []Layer{layer}, nil
}

func jsonFieldType(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}

	switch value := v.(type) {
	case nil:
		return ""
	case bool:
		return "Integer"
	case float64:
		if value == math.Trunc(value) && !strings.ContainsAny(string(raw), ".eE") {
			return "Integer64"
		}

		return "Real"
	case []any:
		return "StringList"
	case map[string]any:
		return "String"
	default:
		return "String"
	}
}

// widenFieldType merges the types seen for one property across features.
func widenFieldType(current, next string) string {
	switch {
	case current == next || next == "":
		return current
	case current == "":
		return next
	case (current == "Integer64" || current == "Integer") && next == "Real",
		current == "Real" && (next == "Integer64" || next == "Integer"):
		return "Real"
	case current == "Integer" && next == "Integer64":
		return next
	case current == "Integer64" && next == "Integer":
		return current
	default:
		return "String"
	}
}

// sortFields orders the properties by name and gives the always-null ones the String type OGR assigns them.
func sortFields(fields []Field) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	for i := range fields {
		if fields[i].Type == "" {
			fields[i].Type = "String"
		}
	}
}

func coordinatesHaveZ(raw json.RawMessage) bool {
	var point []float64
	if err := json.Unmarshal(raw, &point); err == nil {
		return len(point) > 2
	}

	var nested []json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil || len(nested) == 0 {
		return false
	}

	return coordinatesHaveZ(nested[0])
}
