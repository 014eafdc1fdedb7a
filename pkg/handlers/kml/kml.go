// Package kml imports KML and KMZ documents.
package kml

import (
	"context"

	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.kml.KMLFileHandler"

type Handler struct {
	common.Vector
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport:   handlers.VectorImportSteps,
		models.ActionCopy:     handlers.VectorCopySteps,
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{
		ID:     "kml",
		Label:  "KML/KMZ",
		Format: "vector",
		Ext:    []string{"kml", "kmz"},
	})

	inspector := dataset.OgrInfoInspector{Runner: deps.Runner, Binary: deps.OgrinfoBinary}

	return &Handler{Vector: common.NewVector(base, handlers.ValidationKML, inspector, nil)}
}

func (h *Handler) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := h.Vector.IsValid(ctx, files, user, executionID)
	if err != nil {
		return err
	}

	return common.CheckBaseFile(handlers.ValidationKML, files, true)
}
