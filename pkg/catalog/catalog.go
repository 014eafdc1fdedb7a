// Package catalog manages the catalog resources produced by the handlers.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/google/uuid"
)

// PreDeleteHook runs before a resource is deleted, to clean up storage owned by its handler.
type PreDeleteHook func(ctx context.Context, resource *models.Resource) error

// Manager creates, updates, copies and deletes catalog resources.
type Manager struct {
	resources persistence.ResourceRepository
	infos     persistence.ResourceHandlerInfoRepository
	siteURL   string
	hooks     []PreDeleteHook
	logger    *slog.Logger
	now       func() time.Time
}

func New(resources persistence.ResourceRepository, infos persistence.ResourceHandlerInfoRepository, siteURL string, logger *slog.Logger) *Manager {
	return &Manager{
		resources: resources,
		infos:     infos,
		siteURL:   strings.TrimRight(siteURL, "/"),
		logger:    logger.With("module", "catalog"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddPreDeleteHook registers hook to run on every Delete.
func (m *Manager) AddPreDeleteHook(hook PreDeleteHook) {
	m.hooks = append(m.hooks, hook)
}

// Upsert stores resource keyed by its alternate. An existing entry keeps its id and creation date and
// gets every other field from resource. The result is flagged dirty until Finalize runs.
func (m *Manager) Upsert(ctx context.Context, resource *models.Resource) (*models.Resource, error) {
	now := m.now()

	existing, err := m.resources.GetByAlternate(ctx, resource.Alternate)

	switch {
	case err == nil:
		resource.ID = existing.ID
		resource.Created = existing.Created

		m.logger.DebugContext(ctx, "Updating existing resource", "alternate", resource.Alternate, "resource_id", resource.ID)
	case persistence.IsResourceNotFound(err):
		if resource.ID == "" {
			resource.ID = uuid.NewString()
		}

		resource.Created = now
	default:
		return nil, err
	}

	if resource.ResourceType == "" {
		resource.ResourceType = models.ResourceTypeDataset
	}

	resource.DirtyState = true
	resource.LastUpdated = now
	resource.DetailURL = m.DetailURL(resource)

	err = m.resources.Save(ctx, resource)
	if err != nil {
		return nil, err
	}

	return resource, nil
}

// Finalize attaches the optional xml and sld files, regenerates the thumbnail and clears the dirty flag.
func (m *Manager) Finalize(ctx context.Context, resource *models.Resource, files map[string]string) (*models.Resource, error) {
	if path := files["xml_file"]; path != "" {
		resource.XMLFile = path
		resource.MetadataUploaded = true
	}

	if path := files["sld_file"]; path != "" {
		resource.SLDFile = path
		resource.SLDUploaded = true
	}

	resource.Thumbnail = m.ThumbnailURL(resource)
	resource.DirtyState = false
	resource.LastUpdated = m.now()

	err := m.resources.Save(ctx, resource)
	if err != nil {
		return nil, err
	}

	return resource, nil
}

// AttachMetadata stores the xml document path on resource.
func (m *Manager) AttachMetadata(ctx context.Context, resource *models.Resource, path string) error {
	resource.XMLFile = path
	resource.MetadataUploaded = true

	return m.save(ctx, resource)
}

// SetStyle stores the sld document path on resource.
func (m *Manager) SetStyle(ctx context.Context, resource *models.Resource, path string) error {
	resource.SLDFile = path
	resource.SLDUploaded = true

	return m.save(ctx, resource)
}

// AddLink appends link, replacing a previous link with the same name and type.
func (m *Manager) AddLink(ctx context.Context, resource *models.Resource, link models.Link) error {
	resource.Links = slices.DeleteFunc(resource.Links, func(l models.Link) bool {
		return l.Name == link.Name && l.LinkType == link.LinkType
	})
	resource.Links = append(resource.Links, link)

	return m.save(ctx, resource)
}

// Copy duplicates original under alternate and title, owned by owner.
func (m *Manager) Copy(ctx context.Context, original *models.Resource, owner, alternate, title string) (*models.Resource, error) {
	clone := *original
	clone.ID = uuid.NewString()
	clone.Alternate = alternate
	clone.Name = clone.LayerName()
	clone.Title = title
	clone.Owner = owner
	clone.Files = slices.Clone(original.Files)
	clone.Links = slices.Clone(original.Links)
	clone.BBox = slices.Clone(original.BBox)

	if clone.Title == "" {
		clone.Title = clone.Name
	}

	return m.Upsert(ctx, &clone)
}

// Delete runs the pre-delete hooks, then removes the handler links and the resource. Hook failures
// are logged and do not stop the deletion.
func (m *Manager) Delete(ctx context.Context, id string) error {
	resource, err := m.resources.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, hook := range m.hooks {
		if err := hook(ctx, resource); err != nil {
			m.logger.ErrorContext(ctx, "Pre-delete hook failed", "resource_id", id, "alternate", resource.Alternate, "error", err)
		}
	}

	err = m.infos.DeleteByResource(ctx, id)
	if err != nil {
		return err
	}

	err = m.resources.Delete(ctx, id)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Resource deleted", "resource_id", id, "alternate", resource.Alternate)

	return nil
}

func (m *Manager) DetailURL(resource *models.Resource) string {
	return fmt.Sprintf("%s/catalogue/#/%s/%s", m.siteURL, resource.ResourceType, resource.ID)
}

func (m *Manager) ThumbnailURL(resource *models.Resource) string {
	return fmt.Sprintf("%s/uploaded/thumbs/%s-%s-thumb.png", m.siteURL, resource.ResourceType, resource.ID)
}

func (m *Manager) save(ctx context.Context, resource *models.Resource) error {
	resource.LastUpdated = m.now()

	return m.resources.Save(ctx, resource)
}
