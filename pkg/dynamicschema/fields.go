package dynamicschema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/geoimporter/pkg/dataset"
)

// BatchSize bounds the number of fields one create_dynamic_structure task handles.
const BatchSize = 30

// Field classes stored on FieldSchema rows.
const (
	ClassInteger         = "integer"
	ClassFloat           = "float"
	ClassChar            = "char"
	ClassDate            = "date"
	ClassDateTime        = "datetime"
	ClassJSON            = "json"
	ClassPoint           = "point"
	ClassLineString      = "linestring"
	ClassPolygon         = "polygon"
	ClassMultiPoint      = "multipoint"
	ClassMultiLineString = "multilinestring"
	ClassMultiPolygon    = "multipolygon"
)

var standardTypes = map[string]string{
	"Integer64":   ClassInteger,
	"Integer":     ClassInteger,
	"DateTime":    ClassDateTime,
	"Date":        ClassDate,
	"Real":        ClassFloat,
	"String":      ClassChar,
	"StringList":  ClassJSON,
	"IntegerList": ClassJSON,
	"RealList":    ClassJSON,
}

var geometryTypes = map[string]string{
	"Point":             ClassPoint,
	"Line String":       ClassLineString,
	"Polygon":           ClassPolygon,
	"Multi Point":       ClassMultiPoint,
	"Multi Line String": ClassMultiLineString,
	"Multi Polygon":     ClassMultiPolygon,
}

// FieldSpec is one column to create, as carried in task kwargs.
type FieldSpec struct {
	Name      string `json:"name"`
	ClassName string `json:"class_name"`
	Null      bool   `json:"null"`
	Dim       int    `json:"dim,omitempty"`
}

// ClassForType maps an OGR field type to a field class. Unknown types map to "".
func ClassForType(ogrType string) string {
	return standardTypes[ogrType]
}

// GeometryClass maps an OGR geometry name, possibly prefixed by "3D ", to a class and dimension.
func GeometryClass(geometryType string) (string, int) {
	dim := 2

	name := geometryType
	if strings.HasPrefix(strings.ToLower(name), "3d") {
		dim = 3
		name = strings.TrimSpace(name[2:])
	}

	return geometryTypes[name], dim
}

// FieldSpecs lists the columns of layer. promote rewrites the geometry name before mapping, for
// drivers that need multi geometries. Geometry collections and unknown geometries get no column.
func FieldSpecs(layer dataset.Layer, promote func(string) string) []FieldSpec {
	specs := make([]FieldSpec, 0, len(layer.Fields)+1)

	for _, f := range layer.Fields {
		specs = append(specs, FieldSpec{Name: strings.ToLower(f.Name), ClassName: ClassForType(f.Type), Null: true})
	}

	if !layer.HasGeometry() || layer.GeometryType == dataset.GeometryCollection || layer.GeometryType == dataset.GeometryUnknown {
		return specs
	}

	column := layer.GeometryColumn
	if column == "" {
		column = "geometry"
	}

	geometryType := layer.GeometryType
	if promote != nil {
		geometryType = promote(geometryType)
	}

	class, dim := GeometryClass(geometryType)

	return append(specs, FieldSpec{Name: column, ClassName: class, Null: true, Dim: dim})
}

// Chunk splits specs into batches of at most size entries.
func Chunk(specs []FieldSpec, size int) [][]FieldSpec {
	var batches [][]FieldSpec

	for start := 0; start < len(specs); start += size {
		end := min(start+size, len(specs))
		batches = append(batches, specs[start:end])
	}

	return batches
}

// SpecsFromKwarg decodes the fields kwarg of a task message, which arrives as generic JSON.
func SpecsFromKwarg(v any) ([]FieldSpec, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	var specs []FieldSpec

	err = json.Unmarshal(data, &specs)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}

	return specs, nil
}
