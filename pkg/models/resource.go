package models

import (
	"strings"
	"time"
)

const (
	SourceTypeLocal  = "LOCAL"
	SourceTypeRemote = "REMOTE"

	SubtypeVector  = "vector"
	SubtypeRaster  = "raster"
	Subtype3DTiles = "3dtiles"

	ResourceTypeDataset = "dataset"
)

// Link is an external reference attached to a catalog resource.
type Link struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Extension string `json:"extension,omitempty"`
	LinkType  string `json:"link_type"`
}

// Resource is the catalog entry produced by a handler.
type Resource struct {
	ID               string    `json:"id"`
	Alternate        string    `json:"alternate"`
	Name             string    `json:"name"`
	Title            string    `json:"title"`
	Owner            string    `json:"owner"`
	Workspace        string    `json:"workspace,omitempty"`
	Store            string    `json:"store,omitempty"`
	ResourceType     string    `json:"resource_type"`
	Subtype          string    `json:"subtype,omitempty"`
	SourceType       string    `json:"sourcetype,omitempty"`
	Files            []string  `json:"files,omitempty"`
	DirtyState       bool      `json:"dirty_state"`
	SRID             string    `json:"srid,omitempty"`
	BBox             []float64 `json:"bbox,omitempty"`
	BBoxSRID         string    `json:"bbox_srid,omitempty"`
	XMLFile          string    `json:"xml_file,omitempty"`
	MetadataUploaded bool      `json:"metadata_uploaded"`
	SLDFile          string    `json:"sld_file,omitempty"`
	SLDUploaded      bool      `json:"sld_uploaded"`
	Links            []Link    `json:"links,omitempty"`
	Thumbnail        string    `json:"thumbnail_url,omitempty"`
	DetailURL        string    `json:"detail_url,omitempty"`
	Created          time.Time `json:"created"`
	LastUpdated      time.Time `json:"last_updated"`
}

// LayerName strips the workspace prefix from the alternate.
func (r *Resource) LayerName() string {
	if _, name, ok := strings.Cut(r.Alternate, ":"); ok {
		return name
	}

	return r.Alternate
}

// WorkspaceName returns the workspace prefix of the alternate, falling back to Workspace.
func (r *Resource) WorkspaceName() string {
	if ws, _, ok := strings.Cut(r.Alternate, ":"); ok {
		return ws
	}

	return r.Workspace
}

// ResourceHandlerInfo links a catalog resource to the handler that produced it.
type ResourceHandlerInfo struct {
	ID                string    `json:"id"`
	ResourceID        string    `json:"resource_id"`
	HandlerModulePath string    `json:"handler_module_path"`
	ExecutionID       string    `json:"execution_request,omitempty"`
	Kwargs            Params    `json:"kwargs,omitempty"`
	Created           time.Time `json:"created"`
}
