// Package xml attaches ISO metadata documents to resources already in the catalog.
package xml

import (
	"context"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
)

const Key = "importer.handlers.xml.XMLFileHandler"

type Handler struct {
	common.Metadata
}

func New(deps *common.Deps) *Handler {
	base := common.NewBase(deps, Key, 50, map[models.Action][]string{
		models.ActionImport: {handlers.StepStartImport, handlers.TaskImportMetadata},
	}, handlers.ExtensionConfig{
		ID:     "xml",
		Label:  "XML Metadata File",
		Format: "metadata",
		Ext:    []string{"xml"},
	})

	return &Handler{Metadata: common.NewMetadata(base, handlers.ValidationXML, attach)}
}

func attach(ctx context.Context, attacher handlers.MetadataAttacher, resource *models.Resource, path string) error {
	return attacher.AttachXML(ctx, resource, path)
}
