// Package gpkg imports GeoPackage files, one datastore table per feature layer.
package gpkg

import (
	"context"
	"strings"

	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.gpkg.GPKGFileHandler"

type Handler struct {
	common.Vector
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport:   handlers.VectorImportSteps,
		models.ActionCopy:     handlers.VectorCopySteps,
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{
		ID:     "gpkg",
		Label:  "GeoPackage",
		Format: "vector",
		Ext:    []string{"gpkg"},
	})

	return &Handler{Vector: common.NewVector(base, handlers.ValidationGeoPackage, dataset.GeoPackageInspector{}, nil)}
}

// IsValid checks the user quota against the number of layers, then the GeoPackage structure.
func (h *Handler) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := h.Vector.IsValid(ctx, files, user, executionID)
	if err != nil {
		return err
	}

	layers, err := h.Inspector().Layers(ctx, files["base_file"])
	if err != nil {
		return handlers.NewValidationError(handlers.ValidationGeoPackage, "Error while opening the GeoPackage: %v", err)
	}

	if h.Limits != nil {
		maxUploads := h.Limits.MaxParallelUploads()

		if len(layers) >= maxUploads {
			return handlers.NewValidationError(handlers.ValidationUploadLimit,
				"The number of layers in the gpkg %d is greater than the max parallel upload permitted: %d please upload a smaller file",
				len(layers), maxUploads)
		}

		active, err := h.Limits.ActiveUploads(ctx, user, executionID)
		if err != nil {
			return err
		}

		if len(layers)+active >= maxUploads {
			return handlers.NewValidationError(handlers.ValidationUploadLimit,
				"With the provided gpkg, the number of max parallel upload will exceed the limit of %d", maxUploads)
		}
	}

	violations, err := dataset.ValidateGeoPackage(ctx, files["base_file"])
	if err != nil {
		return handlers.NewValidationError(handlers.ValidationGeoPackage, "Error while validating the GeoPackage: %v", err)
	}

	if len(violations) > 0 {
		return handlers.NewValidationError(handlers.ValidationGeoPackage, "Invalid GeoPackage: %s", strings.Join(violations, "; "))
	}

	return nil
}
