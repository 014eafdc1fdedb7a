package remote

import (
	"context"
	"strings"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/handlers/tiles3d"
	"github.com/dukex/geoimporter/pkg/models"
)

const Tiles3DKey = "importer.handlers.remote.RemoteTiles3DResourceHandler"

// Tiles3DHandler links a remote tileset.json and computes its extent.
type Tiles3DHandler struct {
	common.Direct
}

func NewTiles3D(deps *common.Deps) *Tiles3DHandler {
	h := &Tiles3DHandler{}
	h.Direct = common.NewDirect(common.NewBase(deps, Tiles3DKey, 100, remoteActions, handlers.ExtensionConfig{
		ID:     "remote3dtiles",
		Label:  "Remote 3D Tiles",
		Format: "3dtiles",
	}), common.DirectOptions{
		Subtype:       models.Subtype3DTiles,
		SourceType:    models.SourceTypeRemote,
		Name:          ResourceName,
		Prepare:       h.prepare,
		AfterRegister: h.addLink,
	})

	return h
}

func (h *Tiles3DHandler) CanHandle(payload handlers.Payload) bool {
	return payload.String(models.ParamURL) != "" && strings.Contains(strings.ToLower(payload.String(models.ParamType)), "3dtiles")
}

func (h *Tiles3DHandler) ExtractParamsFromData(payload handlers.Payload, action models.Action) (handlers.Payload, handlers.Payload) {
	return ExtractParams(payload, action)
}

func (h *Tiles3DHandler) IsValid(ctx context.Context, _ map[string]string, _, executionID string) error {
	execution, err := h.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	data, err := Fetch(ctx, h.HTTP, execution.InputParams.String(models.ParamURL), true)
	if err != nil {
		return err
	}

	err = tiles3d.ValidateTileset(data)
	if err != nil {
		return handlers.NewValidationError(handlers.ValidationRemote, "Invalid remote tileset: %v", err)
	}

	return nil
}

func (h *Tiles3DHandler) addLink(ctx context.Context, execution *models.ExecutionRequest, resource *models.Resource) error {
	return addDataLink(ctx, h.Catalog, execution, resource)
}

func (h *Tiles3DHandler) prepare(ctx context.Context, execution *models.ExecutionRequest, resource *models.Resource) error {
	data, err := Fetch(ctx, h.HTTP, execution.InputParams.String(models.ParamURL), true)
	if err != nil {
		return err
	}

	bbox, err := tiles3d.BoundingBox(data)
	if err != nil {
		h.Logger().WarnContext(ctx, "Cannot compute the remote tileset extent", "alternate", resource.Alternate, "error", err)

		return nil
	}

	resource.BBox = bbox
	resource.BBoxSRID = "EPSG:4326"
	resource.SRID = "EPSG:4326"

	return nil
}
