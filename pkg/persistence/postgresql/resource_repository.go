package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

const resourceColumns = `
	id
  , alternate
  , name
  , title
  , owner
  , workspace
  , store
  , resource_type
  , subtype
  , source_type
  , files
  , dirty_state
  , srid
  , bbox
  , bbox_srid
  , xml_file
  , metadata_uploaded
  , sld_file
  , sld_uploaded
  , links
  , thumbnail_url
  , detail_url
  , created
  , last_updated
`

// ResourceRepository handles catalog resource database operations.
type ResourceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewResourceRepository creates a new resource repository.
func NewResourceRepository(db *sql.DB, logger *slog.Logger) *ResourceRepository {
	return &ResourceRepository{db: db, logger: logger}
}

// Save upserts a resource by id.
func (r *ResourceRepository) Save(ctx context.Context, resource *models.Resource) error {
	filesJSON, err := json.Marshal(nonNilSlice(resource.Files))
	if err != nil {
		return persistence.NewRepositoryError("Save", "resource", resource.ID, fmt.Errorf("failed to marshal files: %w", err))
	}

	bboxJSON, err := json.Marshal(nonNilSlice(resource.BBox))
	if err != nil {
		return persistence.NewRepositoryError("Save", "resource", resource.ID, fmt.Errorf("failed to marshal bbox: %w", err))
	}

	linksJSON, err := json.Marshal(nonNilSlice(resource.Links))
	if err != nil {
		return persistence.NewRepositoryError("Save", "resource", resource.ID, fmt.Errorf("failed to marshal links: %w", err))
	}

	query := `
		INSERT INTO resources (` + resourceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			alternate = EXCLUDED.alternate,
			name = EXCLUDED.name,
			title = EXCLUDED.title,
			owner = EXCLUDED.owner,
			workspace = EXCLUDED.workspace,
			store = EXCLUDED.store,
			resource_type = EXCLUDED.resource_type,
			subtype = EXCLUDED.subtype,
			source_type = EXCLUDED.source_type,
			files = EXCLUDED.files,
			dirty_state = EXCLUDED.dirty_state,
			srid = EXCLUDED.srid,
			bbox = EXCLUDED.bbox,
			bbox_srid = EXCLUDED.bbox_srid,
			xml_file = EXCLUDED.xml_file,
			metadata_uploaded = EXCLUDED.metadata_uploaded,
			sld_file = EXCLUDED.sld_file,
			sld_uploaded = EXCLUDED.sld_uploaded,
			links = EXCLUDED.links,
			thumbnail_url = EXCLUDED.thumbnail_url,
			detail_url = EXCLUDED.detail_url,
			last_updated = EXCLUDED.last_updated
	`

	_, err = r.db.ExecContext(ctx, query,
		resource.ID,
		resource.Alternate,
		resource.Name,
		resource.Title,
		resource.Owner,
		resource.Workspace,
		resource.Store,
		resource.ResourceType,
		resource.Subtype,
		resource.SourceType,
		filesJSON,
		resource.DirtyState,
		resource.SRID,
		bboxJSON,
		resource.BBoxSRID,
		resource.XMLFile,
		resource.MetadataUploaded,
		resource.SLDFile,
		resource.SLDUploaded,
		linksJSON,
		resource.Thumbnail,
		resource.DetailURL,
		resource.Created,
		resource.LastUpdated,
	)
	if err != nil {
		return persistence.NewRepositoryError("Save", "resource", resource.ID, err)
	}

	return nil
}

func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	return r.one(ctx, "GetByID", id, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id)
}

func (r *ResourceRepository) GetByAlternate(ctx context.Context, alternate string) (*models.Resource, error) {
	return r.one(ctx, "GetByAlternate", alternate, `SELECT `+resourceColumns+` FROM resources WHERE alternate = $1`, alternate)
}

func (r *ResourceRepository) FindByOwnerAndAlternate(ctx context.Context, owner, alternate string) (*models.Resource, error) {
	return r.one(ctx, "FindByOwnerAndAlternate", alternate,
		`SELECT `+resourceColumns+` FROM resources WHERE owner = $1 AND alternate = $2`, owner, alternate)
}

// SearchByAlternateOrTitle matches the alternate, the layer name after the workspace prefix, or the title.
func (r *ResourceRepository) SearchByAlternateOrTitle(ctx context.Context, term string) ([]*models.Resource, error) {
	query := `
		SELECT ` + resourceColumns + `
		FROM resources
		WHERE alternate = $1
		   OR split_part(alternate, ':', 2) = $1
		   OR title = $1
		ORDER BY created
	`

	rows, err := r.db.QueryContext(ctx, query, term)
	if err != nil {
		return nil, persistence.NewRepositoryError("SearchByAlternateOrTitle", "resource", term, err)
	}

	defer closeRows(ctx, r.logger, rows)

	resources := make([]*models.Resource, 0)

	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, persistence.NewRepositoryError("SearchByAlternateOrTitle", "resource", term, err)
		}

		resources = append(resources, resource)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("SearchByAlternateOrTitle", "resource", term, err)
	}

	return resources, nil
}

func (r *ResourceRepository) SetDirtyState(ctx context.Context, id string, dirty bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE resources SET dirty_state = $2, last_updated = $3 WHERE id = $1`, id, dirty, time.Now().UTC())
	if err != nil {
		return persistence.NewRepositoryError("SetDirtyState", "resource", id, err)
	}

	return requireAffected(result, "SetDirtyState", "resource", id, persistence.ErrResourceNotFound)
}

// Delete removes the resource; its handler infos cascade.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return persistence.NewRepositoryError("Delete", "resource", id, err)
	}

	return nil
}

func (r *ResourceRepository) one(ctx context.Context, op, key, query string, args ...any) (*models.Resource, error) {
	resource, err := scanResource(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError(op, "resource", key, persistence.ErrResourceNotFound)
		}

		return nil, persistence.NewRepositoryError(op, "resource", key, err)
	}

	return resource, nil
}

func scanResource(row scanner) (*models.Resource, error) {
	var (
		resource                       models.Resource
		filesJSON, bboxJSON, linksJSON []byte
	)

	err := row.Scan(
		&resource.ID,
		&resource.Alternate,
		&resource.Name,
		&resource.Title,
		&resource.Owner,
		&resource.Workspace,
		&resource.Store,
		&resource.ResourceType,
		&resource.Subtype,
		&resource.SourceType,
		&filesJSON,
		&resource.DirtyState,
		&resource.SRID,
		&bboxJSON,
		&resource.BBoxSRID,
		&resource.XMLFile,
		&resource.MetadataUploaded,
		&resource.SLDFile,
		&resource.SLDUploaded,
		&linksJSON,
		&resource.Thumbnail,
		&resource.DetailURL,
		&resource.Created,
		&resource.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	err = unmarshalColumn(filesJSON, &resource.Files, "files")
	if err != nil {
		return nil, err
	}

	err = unmarshalColumn(bboxJSON, &resource.BBox, "bbox")
	if err != nil {
		return nil, err
	}

	err = unmarshalColumn(linksJSON, &resource.Links, "links")
	if err != nil {
		return nil, err
	}

	return &resource, nil
}

func unmarshalColumn(data []byte, target any, column string) error {
	if len(data) == 0 {
		return nil
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", column, err)
	}

	return nil
}

// ResourceHandlerInfoRepository handles resource to handler link database operations.
type ResourceHandlerInfoRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewResourceHandlerInfoRepository creates a new handler info repository.
func NewResourceHandlerInfoRepository(db *sql.DB, logger *slog.Logger) *ResourceHandlerInfoRepository {
	return &ResourceHandlerInfoRepository{db: db, logger: logger}
}

func (r *ResourceHandlerInfoRepository) Save(ctx context.Context, info *models.ResourceHandlerInfo) error {
	kwargsJSON, err := json.Marshal(nonNilParams(info.Kwargs))
	if err != nil {
		return persistence.NewRepositoryError("Save", "resource_handler_info", info.ID, fmt.Errorf("failed to marshal kwargs: %w", err))
	}

	query := `
		INSERT INTO resource_handler_infos (id, resource_id, handler_module_path, execution_id, kwargs, created)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			resource_id = EXCLUDED.resource_id,
			handler_module_path = EXCLUDED.handler_module_path,
			execution_id = EXCLUDED.execution_id,
			kwargs = EXCLUDED.kwargs
	`

	_, err = r.db.ExecContext(ctx, query, info.ID, info.ResourceID, info.HandlerModulePath, info.ExecutionID, kwargsJSON, info.Created)
	if err != nil {
		return persistence.NewRepositoryError("Save", "resource_handler_info", info.ID, err)
	}

	return nil
}

func (r *ResourceHandlerInfoRepository) ListByResource(ctx context.Context, resourceID string) ([]*models.ResourceHandlerInfo, error) {
	return r.list(ctx, "ListByResource", resourceID, "resource_id")
}

func (r *ResourceHandlerInfoRepository) ListByExecution(ctx context.Context, execID string) ([]*models.ResourceHandlerInfo, error) {
	return r.list(ctx, "ListByExecution", execID, "execution_id")
}

func (r *ResourceHandlerInfoRepository) DeleteByResource(ctx context.Context, resourceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resource_handler_infos WHERE resource_id = $1`, resourceID)
	if err != nil {
		return persistence.NewRepositoryError("DeleteByResource", "resource_handler_info", resourceID, err)
	}

	return nil
}

// list filters on column, which is always one of the fixed column names above.
func (r *ResourceHandlerInfoRepository) list(ctx context.Context, op, key, column string) ([]*models.ResourceHandlerInfo, error) {
	query := `
		SELECT id, resource_id, handler_module_path, execution_id, kwargs, created
		FROM resource_handler_infos
		WHERE ` + column + ` = $1
		ORDER BY created
	`

	rows, err := r.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, persistence.NewRepositoryError(op, "resource_handler_info", key, err)
	}

	defer closeRows(ctx, r.logger, rows)

	infos := make([]*models.ResourceHandlerInfo, 0)

	for rows.Next() {
		var (
			info       models.ResourceHandlerInfo
			kwargsJSON []byte
		)

		err := rows.Scan(&info.ID, &info.ResourceID, &info.HandlerModulePath, &info.ExecutionID, &kwargsJSON, &info.Created)
		if err != nil {
			return nil, persistence.NewRepositoryError(op, "resource_handler_info", key, err)
		}

		info.Kwargs = models.Params{}
		if len(kwargsJSON) > 0 {
			if err := json.Unmarshal(kwargsJSON, &info.Kwargs); err != nil {
				return nil, persistence.NewRepositoryError(op, "resource_handler_info", key, err)
			}
		}

		infos = append(infos, &info)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError(op, "resource_handler_info", key, err)
	}

	return infos, nil
}

func requireAffected(result sql.Result, op, kind, id string, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError(op, kind, id, err)
	}

	if affected == 0 {
		return persistence.NewRepositoryError(op, kind, id, notFound)
	}

	return nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
