// Package sld applies uploaded SLD styles to resources already in the catalog.
package sld

import (
	"context"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.sld.SLDFileHandler"

type Handler struct {
	common.Metadata
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport: {handlers.StepStartImport, handlers.TaskImportMetadata},
	}, handlers.ExtensionConfig{
		ID:     "sld",
		Label:  "Styled Layer Descriptor (SLD)",
		Format: "metadata",
		Ext:    []string{"sld"},
	})

	return &Handler{Metadata: common.NewMetadata(base, handlers.ValidationSLD, attach)}
}

func attach(ctx context.Context, attacher handlers.MetadataAttacher, resource *models.Resource, path string) error {
	return attacher.AttachSLD(ctx, resource, path)
}
