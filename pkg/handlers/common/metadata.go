package common

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

// AttachFunc stores a metadata document on resource through attacher.
type AttachFunc func(ctx context.Context, attacher handlers.MetadataAttacher, resource *models.Resource, path string) error

// Metadata attaches an xml or sld document to a resource imported earlier, found by dataset_title.
type Metadata struct {
	Base

	kind   handlers.ValidationKind
	attach AttachFunc
}

func NewMetadata(base Base, kind handlers.ValidationKind, attach AttachFunc) Metadata {
	return Metadata{Base: base, kind: kind, attach: attach}
}

// IsValid requires a readable, well formed XML document.
func (m *Metadata) IsValid(_ context.Context, files map[string]string, _, _ string) error {
	err := CheckBaseFile(m.kind, files, false)
	if err != nil {
		return err
	}

	f, err := os.Open(files["base_file"])
	if err != nil {
		return handlers.NewValidationError(m.kind, "The file %s cannot be read: %v", files["base_file"], err)
	}
	defer f.Close()

	decoder := xml.NewDecoder(f)

	for {
		_, err = decoder.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return handlers.NewValidationError(m.kind, "Uploaded document is not XML or is invalid: %v", err)
		}
	}
}

func (m *Metadata) ImportResource(ctx context.Context, files map[string]string, executionID string) error {
	execution, err := m.Executions.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	resource, err := m.targetResource(ctx, execution)
	if err != nil {
		return err
	}

	attacher, err := m.attacherFor(ctx, resource)
	if err != nil {
		return err
	}

	err = m.attach(ctx, attacher, resource, files["base_file"])
	if err != nil {
		return err
	}

	m.log.InfoContext(ctx, "Metadata attached", "execution_id", executionID, "alternate", resource.Alternate, "kind", m.kind)

	_, err = m.Executions.UpdateExecutionRequestStatus(ctx, executionID, persistence.ExecutionUpdate{ResourceID: persistence.Ptr(resource.ID)})
	if err != nil {
		return err
	}

	return m.Executions.EvaluateExecutionProgress(ctx, executionID, m.key)
}

// targetResource prefers a resource of the requesting user among the ones matching dataset_title.
func (m *Metadata) targetResource(ctx context.Context, execution *models.ExecutionRequest) (*models.Resource, error) {
	title := execution.InputParams.String(models.ParamDatasetTitle)
	if title == "" {
		return nil, fmt.Errorf("dataset_title is required to attach a %s document", m.kind)
	}

	candidates, err := m.Resources.SearchByAlternateOrTitle(ctx, title)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("The dataset %s does not exists", title)
	}

	for _, r := range candidates {
		if r.Owner == execution.User {
			return r, nil
		}
	}

	return candidates[0], nil
}

// attacherFor returns the handler that produced resource when it knows how to attach metadata.
func (m *Metadata) attacherFor(ctx context.Context, resource *models.Resource) (handlers.MetadataAttacher, error) {
	infos, err := m.HandlerInfos.ListByResource(ctx, resource.ID)
	if err != nil {
		return nil, err
	}

	if len(infos) == 0 || m.Loader == nil {
		return m, nil
	}

	owner, err := m.Loader.Load(infos[0].HandlerModulePath)
	if err != nil {
		m.log.WarnContext(ctx, "Handler of the resource not available, attaching directly", "alternate", resource.Alternate, "error", err)

		return m, nil
	}

	if attacher, ok := owner.(handlers.MetadataAttacher); ok {
		return attacher, nil
	}

	return m, nil
}

func (m *Metadata) CreateResource(_ context.Context, _, _, _ string) (*models.Resource, error) {
	return nil, fmt.Errorf("%s does not create resources: %w", m.key, handlers.ErrNotSupported)
}
