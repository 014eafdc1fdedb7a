package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

const (
	resourceKind    = "resource"
	handlerInfoKind = "resource_handler_info"
)

// ResourceRepository handles catalog resource file operations.
type ResourceRepository struct {
	docs *documents[models.Resource]
}

func (r *ResourceRepository) Save(_ context.Context, resource *models.Resource) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	err := r.docs.write(resource.ID, resource)
	if err != nil {
		return persistence.NewRepositoryError("Save", resourceKind, resource.ID, err)
	}

	return nil
}

func (r *ResourceRepository) GetByID(_ context.Context, id string) (*models.Resource, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	resource, err := r.docs.read(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", resourceKind, id, err)
	}

	if resource == nil {
		return nil, persistence.NewRepositoryError("GetByID", resourceKind, id, persistence.ErrResourceNotFound)
	}

	return resource, nil
}

func (r *ResourceRepository) GetByAlternate(_ context.Context, alternate string) (*models.Resource, error) {
	return r.first("GetByAlternate", alternate, func(res *models.Resource) bool {
		return res.Alternate == alternate
	})
}

func (r *ResourceRepository) FindByOwnerAndAlternate(_ context.Context, owner, alternate string) (*models.Resource, error) {
	return r.first("FindByOwnerAndAlternate", alternate, func(res *models.Resource) bool {
		return res.Owner == owner && res.Alternate == alternate
	})
}

func (r *ResourceRepository) SearchByAlternateOrTitle(_ context.Context, term string) ([]*models.Resource, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	found, err := r.docs.filter(func(res *models.Resource) bool {
		return res.Alternate == term || res.LayerName() == term || res.Title == term
	})
	if err != nil {
		return nil, persistence.NewRepositoryError("SearchByAlternateOrTitle", resourceKind, term, err)
	}

	return found, nil
}

func (r *ResourceRepository) SetDirtyState(_ context.Context, id string, dirty bool) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	resource, err := r.docs.read(id)
	if err != nil {
		return persistence.NewRepositoryError("SetDirtyState", resourceKind, id, err)
	}

	if resource == nil {
		return persistence.NewRepositoryError("SetDirtyState", resourceKind, id, persistence.ErrResourceNotFound)
	}

	resource.DirtyState = dirty
	resource.LastUpdated = time.Now().UTC()

	err = r.docs.write(id, resource)
	if err != nil {
		return persistence.NewRepositoryError("SetDirtyState", resourceKind, id, err)
	}

	return nil
}

func (r *ResourceRepository) Delete(_ context.Context, id string) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	err := r.docs.remove(id)
	if err != nil {
		return persistence.NewRepositoryError("Delete", resourceKind, id, err)
	}

	return nil
}

func (r *ResourceRepository) first(op, key string, match func(*models.Resource) bool) (*models.Resource, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	found, err := r.docs.filter(match)
	if err != nil {
		return nil, persistence.NewRepositoryError(op, resourceKind, key, err)
	}

	if len(found) == 0 {
		return nil, persistence.NewRepositoryError(op, resourceKind, key, persistence.ErrResourceNotFound)
	}

	return found[0], nil
}

// ResourceHandlerInfoRepository handles resource to handler link file operations.
type ResourceHandlerInfoRepository struct {
	docs *documents[models.ResourceHandlerInfo]
}

func (r *ResourceHandlerInfoRepository) Save(_ context.Context, info *models.ResourceHandlerInfo) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	err := r.docs.write(info.ID, info)
	if err != nil {
		return persistence.NewRepositoryError("Save", handlerInfoKind, info.ID, err)
	}

	return nil
}

func (r *ResourceHandlerInfoRepository) ListByResource(_ context.Context, resourceID string) ([]*models.ResourceHandlerInfo, error) {
	return r.list("ListByResource", resourceID, func(info *models.ResourceHandlerInfo) bool {
		return info.ResourceID == resourceID
	})
}

func (r *ResourceHandlerInfoRepository) ListByExecution(_ context.Context, execID string) ([]*models.ResourceHandlerInfo, error) {
	return r.list("ListByExecution", execID, func(info *models.ResourceHandlerInfo) bool {
		return info.ExecutionID == execID
	})
}

func (r *ResourceHandlerInfoRepository) DeleteByResource(_ context.Context, resourceID string) error {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	infos, err := r.docs.filter(func(info *models.ResourceHandlerInfo) bool {
		return info.ResourceID == resourceID
	})
	if err != nil {
		return persistence.NewRepositoryError("DeleteByResource", handlerInfoKind, resourceID, err)
	}

	for _, info := range infos {
		err := r.docs.remove(info.ID)
		if err != nil {
			return persistence.NewRepositoryError("DeleteByResource", handlerInfoKind, resourceID, err)
		}
	}

	return nil
}

func (r *ResourceHandlerInfoRepository) list(op, key string, match func(*models.ResourceHandlerInfo) bool) ([]*models.ResourceHandlerInfo, error) {
	r.docs.mu.Lock()
	defer r.docs.mu.Unlock()

	infos, err := r.docs.filter(match)
	if err != nil {
		return nil, persistence.NewRepositoryError(op, handlerInfoKind, key, err)
	}

	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Created.Before(infos[j].Created) })

	return infos, nil
}
