// Package geotiff publishes GeoTIFF rasters as map server coverages.
package geotiff

import (
	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.geotiff.GeoTiffFileHandler"

type Handler struct {
	common.Raster
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport: handlers.VectorImportSteps,
		models.ActionCopy: {
			handlers.StepStartCopy,
			handlers.TaskCopyRasterFile,
			handlers.TaskPublishResource,
			handlers.TaskCopyResource,
		},
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{
		ID:       "tiff",
		Label:    "GeoTIFF",
		Format:   "raster",
		Ext:      []string{"tiff", "tif", "geotiff", "geotif"},
		Optional: []string{"xml", "sld"},
	})

	inspector := dataset.GdalInfo{Runner: deps.Runner, Binary: deps.GdalinfoBinary}

	return &Handler{Raster: common.NewRaster(base, inspector)}
}
