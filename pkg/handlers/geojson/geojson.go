// Package geojson imports GeoJSON feature collections.
package geojson

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const Key = "importer.handlers.geojson.GeoJsonFileHandler"

// envelopeSchema only checks the top level shape; geometries are left to ogr2ogr.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"enum": ["FeatureCollection", "Feature"]},
		"features": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "geometry"],
				"properties": {"type": {"const": "Feature"}}
			}
		}
	},
	"if": {"properties": {"type": {"const": "FeatureCollection"}}},
	"then": {"required": ["features"]}
}`

type Handler struct {
	common.Vector
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport:   handlers.VectorImportSteps,
		models.ActionCopy:     handlers.VectorCopySteps,
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{
		ID:       "geojson",
		Label:    "GeoJSON",
		Format:   "vector",
		Ext:      []string{"json", "geojson"},
		Optional: []string{"xml", "sld"},
	})

	return &Handler{Vector: common.NewVector(base, handlers.ValidationGeoJSON, dataset.GeoJSONInspector{}, nil)}
}

func (h *Handler) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := h.Vector.IsValid(ctx, files, user, executionID)
	if err != nil {
		return err
	}

	err = common.CheckBaseFile(handlers.ValidationGeoJSON, files, true)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(files["base_file"])
	if err != nil {
		return handlers.NewValidationError(handlers.ValidationGeoJSON, "The file %s cannot be read: %v", files["base_file"], err)
	}

	err = validateEnvelope(data)
	if err != nil {
		return handlers.NewValidationError(handlers.ValidationGeoJSON, "Invalid GeoJSON: %v", err)
	}

	return nil
}

func validateEnvelope(data []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(envelopeSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Ogr2OgrArgs names the geometry column the way the dynamic schema does.
func (h *Handler) Ogr2OgrArgs(ctx context.Context, files map[string]string, originalName string, overwrite bool, alternate string) ([]string, error) {
	args, err := h.Vector.Ogr2OgrArgs(ctx, files, originalName, overwrite, alternate)
	if err != nil {
		return nil, err
	}

	return append(args, "-lco", "GEOMETRY_NAME=geometry"), nil
}
