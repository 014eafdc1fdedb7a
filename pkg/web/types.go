// Package web provides the HTTP handlers of the importer API.
package web

import (
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
)

// UserHeader carries the name of the user a request is made for.
const UserHeader = "X-User"

// UploadRequest represents the request body submitting an import. Either files or url is required.
type UploadRequest struct {
	Files                 map[string]string `json:"files,omitempty"                   validate:"required_without=URL"`
	SkipExistingLayers    bool              `json:"skip_existing_layers"`
	OverrideExistingLayer bool              `json:"override_existing_layer"`
	StoreSpatialFiles     *bool             `json:"store_spatial_files,omitempty"`
	URL                   string            `json:"url,omitempty"                     validate:"omitempty,url"`
	Title                 string            `json:"title,omitempty"                   validate:"omitempty,max=255"`
	Type                  string            `json:"type,omitempty"`
	DatasetTitle          string            `json:"dataset_title,omitempty"           validate:"omitempty,max=255"`
}

// Payload converts the request into the payload probed by the handlers. Unset optional values are
// left out so the handler defaults apply.
func (r UploadRequest) Payload() handlers.Payload {
	payload := handlers.Payload{
		models.ParamSkipExistingLayers:    r.SkipExistingLayers,
		models.ParamOverrideExistingLayer: r.OverrideExistingLayer,
	}

	if len(r.Files) > 0 {
		files := make(map[string]any, len(r.Files))
		for role, path := range r.Files {
			files[role] = path
		}

		payload[models.ParamFiles] = files
	}

	if r.StoreSpatialFiles != nil {
		payload["store_spatial_files"] = *r.StoreSpatialFiles
	}

	optional := map[string]string{
		models.ParamURL:          r.URL,
		models.ParamTitle:        r.Title,
		models.ParamType:         r.Type,
		models.ParamDatasetTitle: r.DatasetTitle,
	}

	for key, value := range optional {
		if value != "" {
			payload[key] = value
		}
	}

	return payload
}

// CopyRequest represents the request body copying a resource.
type CopyRequest struct {
	Title string `json:"title" validate:"omitempty,max=255"`
}

// ExecutionResponse is returned once an execution was submitted.
type ExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}
