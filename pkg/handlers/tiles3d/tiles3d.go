// Package tiles3d registers uploaded 3D Tiles tilesets in the catalog.
package tiles3d

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.tiles3d.Tiles3DFileHandler"

type Handler struct {
	common.Direct
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 100, map[models.Action][]string{
		models.ActionImport:   {handlers.StepStartImport, handlers.TaskImportResource, handlers.TaskCreateResource},
		models.ActionCopy:     {handlers.StepStartCopy, handlers.TaskCopyResource},
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{
		ID:     "3dtiles",
		Label:  "3D Tiles",
		Format: "3dtiles",
		Ext:    []string{"json"},
	})

	h := &Handler{}
	h.Direct = common.NewDirect(base, common.DirectOptions{
		Subtype:    models.Subtype3DTiles,
		SourceType: models.SourceTypeLocal,
		Name:       layerName,
		Prepare:    h.prepare,
	})

	return h
}

// CanHandle claims json files named tileset.json.
func (h *Handler) CanHandle(payload handlers.Payload) bool {
	return h.Direct.CanHandle(payload) && strings.EqualFold(handlers.Stem(payload.BaseFile()), "tileset")
}

func (h *Handler) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := h.CheckUploadLimit(ctx, user, executionID)
	if err != nil {
		return err
	}

	err = common.CheckBaseFile(handlers.Validation3DTiles, files, true)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(files["base_file"])
	if err != nil {
		return handlers.NewValidationError(handlers.Validation3DTiles, "The file %s cannot be read: %v", files["base_file"], err)
	}

	err = ValidateTileset(data)
	if err != nil {
		return handlers.NewValidationError(handlers.Validation3DTiles, "Invalid tileset: %v", err)
	}

	return nil
}

// layerName prefers the title, then the uploaded archive, then the folder holding tileset.json.
func layerName(execution *models.ExecutionRequest) string {
	if title := execution.InputParams.String(models.ParamTitle); title != "" {
		return title
	}

	if zip := execution.InputParams.String(models.ParamOriginalZipName); zip != "" {
		return handlers.Stem(zip)
	}

	base := execution.Files()["base_file"]
	if dir := filepath.Base(filepath.Dir(base)); dir != "." && dir != string(filepath.Separator) {
		return dir
	}

	return handlers.Stem(base)
}

func (h *Handler) prepare(ctx context.Context, execution *models.ExecutionRequest, resource *models.Resource) error {
	data, err := os.ReadFile(execution.Files()["base_file"])
	if err != nil {
		return err
	}

	bbox, err := BoundingBox(data)
	if err != nil {
		h.Logger().WarnContext(ctx, "Cannot compute the tileset extent", "alternate", resource.Alternate, "error", err)

		return nil
	}

	resource.BBox = bbox
	resource.BBoxSRID = "EPSG:4326"
	resource.SRID = "EPSG:4326"

	return nil
}
