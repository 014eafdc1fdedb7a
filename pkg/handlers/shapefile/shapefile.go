// Package shapefile imports ESRI Shapefiles together with their companion files.
package shapefile

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
	"golang.org/x/text/encoding/ianaindex"
)

const Key = "importer.handlers.shapefile.ShapeFileHandler"

var requiredCompanions = []string{"prj", "dbf", "shx"}

type Handler struct {
	common.Vector
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport: handlers.VectorImportSteps,
		models.ActionCopy: {
			handlers.StepStartCopy,
			handlers.TaskCopyDynamicModel,
			handlers.TaskCopyDataTable,
			handlers.TaskPublishResource,
			handlers.TaskCopyResource,
		},
		models.ActionRollback: handlers.RollbackSteps,
	}, handlers.ExtensionConfig{
		ID:       "shp",
		Label:    "ESRI Shapefile",
		Format:   "vector",
		Ext:      []string{"shp"},
		Requires: []string{"shp", "prj", "dbf", "shx"},
		Optional: []string{"xml", "sld", "cpg", "cst"},
	})

	inspector := dataset.OgrInfoInspector{Runner: deps.Runner, Binary: deps.OgrinfoBinary}

	return &Handler{Vector: common.NewVector(base, handlers.ValidationShapefile, inspector, PromoteToMulti)}
}

// PromoteToMulti turns single geometry names into their multi variant. Points are left alone since
// ogr2ogr keeps point layers as they are.
func PromoteToMulti(geometryType string) string {
	prefix := ""

	name := geometryType
	if strings.HasPrefix(strings.ToLower(name), "3d ") {
		prefix, name = name[:3], name[3:]
	}

	if strings.Contains(name, "Multi") || strings.Contains(name, "Point") {
		return geometryType
	}

	return prefix + "Multi " + name
}

// IsValid requires the prj, dbf and shx companions next to the shp, with the same base name.
func (h *Handler) IsValid(ctx context.Context, files map[string]string, user, executionID string) error {
	err := h.Vector.IsValid(ctx, files, user, executionID)
	if err != nil {
		return err
	}

	stem := strings.ToLower(handlers.Stem(files["base_file"]))

	var missing []string

	for _, ext := range requiredCompanions {
		if companion(files, stem, ext) == "" {
			missing = append(missing, ext)
		}
	}

	if len(missing) > 0 {
		return handlers.NewValidationError(handlers.ValidationShapefile,
			"Some file is missing files with the same name and in the same folder are required: %s", strings.Join(missing, ", "))
	}

	return nil
}

func companion(files map[string]string, stem, ext string) string {
	for _, path := range files {
		if handlers.Extension(path) == ext && strings.ToLower(handlers.Stem(path)) == stem {
			return path
		}
	}

	return ""
}

// Ogr2OgrArgs keeps the source precision, names the geometry column and promotes non point
// geometries to multi. The encoding comes from a .cst companion when no .cpg is provided.
func (h *Handler) Ogr2OgrArgs(ctx context.Context, files map[string]string, originalName string, overwrite bool, alternate string) ([]string, error) {
	args, err := h.Vector.Ogr2OgrArgs(ctx, files, originalName, overwrite, alternate)
	if err != nil {
		return nil, err
	}

	args = append(args, "-lco", "precision=no", "-lco", "GEOMETRY_NAME=geometry")

	point, err := h.isPointLayer(ctx, files["base_file"], originalName)
	if err != nil {
		return nil, err
	}

	if !point {
		args = append(args, "-nlt", "PROMOTE_TO_MULTI")
	}

	if encoding := h.encoding(ctx, files); encoding != "" {
		args = append(args, "--config", "SHAPE_ENCODING", encoding)
	}

	return args, nil
}

func (h *Handler) isPointLayer(ctx context.Context, path, originalName string) (bool, error) {
	layers, err := h.Inspector().Layers(ctx, path)
	if err != nil {
		return false, err
	}

	for _, l := range layers {
		if strings.EqualFold(l.Name, originalName) {
			return strings.Contains(l.GeometryType, "Point"), nil
		}
	}

	return false, nil
}

func (h *Handler) encoding(ctx context.Context, files map[string]string) string {
	stem := strings.ToLower(handlers.Stem(files["base_file"]))

	if companion(files, stem, "cpg") != "" {
		return ""
	}

	cst := companion(files, stem, "cst")
	if cst == "" {
		return h.ShapefileEncoding
	}

	data, err := os.ReadFile(cst)
	if err != nil {
		h.Logger().ErrorContext(ctx, "Failed to read the shapefile encoding", "file", cst, "error", err)

		return h.ShapefileEncoding
	}

	name := strings.TrimSpace(string(data))

	_, err = ianaindex.IANA.Encoding(name)
	if err != nil {
		h.Logger().ErrorContext(ctx, "Unknown shapefile encoding, ignoring it", "encoding", name, "error", err)

		return h.ShapefileEncoding
	}

	return name
}
