package file

import (
	"context"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

const (
	schemaKind = "model_schema"
	fieldKind  = "field_schema"
)

// DynamicSchemaRepository handles dynamic schema and field file operations.
type DynamicSchemaRepository struct {
	schemas *documents[models.ModelSchema]
	fields  *documents[models.FieldSchema]
}

func (r *DynamicSchemaRepository) SaveSchema(_ context.Context, schema *models.ModelSchema) error {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	err := r.schemas.write(schema.ID, schema)
	if err != nil {
		return persistence.NewRepositoryError("SaveSchema", schemaKind, schema.ID, err)
	}

	return nil
}

func (r *DynamicSchemaRepository) GetSchemaByID(_ context.Context, id string) (*models.ModelSchema, error) {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	schema, err := r.schemas.read(id)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetSchemaByID", schemaKind, id, err)
	}

	if schema == nil {
		return nil, persistence.NewRepositoryError("GetSchemaByID", schemaKind, id, persistence.ErrModelSchemaNotFound)
	}

	return schema, nil
}

func (r *DynamicSchemaRepository) GetSchemaByName(_ context.Context, name string) (*models.ModelSchema, error) {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	found, err := r.schemas.filter(func(s *models.ModelSchema) bool { return s.Name == name })
	if err != nil {
		return nil, persistence.NewRepositoryError("GetSchemaByName", schemaKind, name, err)
	}

	if len(found) == 0 {
		return nil, persistence.NewRepositoryError("GetSchemaByName", schemaKind, name, persistence.ErrModelSchemaNotFound)
	}

	return found[0], nil
}

func (r *DynamicSchemaRepository) DeleteSchema(_ context.Context, id string) error {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	fields, err := r.fields.filter(func(f *models.FieldSchema) bool { return f.ModelSchemaID == id })
	if err != nil {
		return persistence.NewRepositoryError("DeleteSchema", schemaKind, id, err)
	}

	for _, field := range fields {
		if err := r.fields.remove(field.ID); err != nil {
			return persistence.NewRepositoryError("DeleteSchema", fieldKind, field.ID, err)
		}
	}

	err = r.schemas.remove(id)
	if err != nil {
		return persistence.NewRepositoryError("DeleteSchema", schemaKind, id, err)
	}

	return nil
}

// CreateFields stores a batch of new fields. The owning schema must exist.
func (r *DynamicSchemaRepository) CreateFields(_ context.Context, fields []*models.FieldSchema) error {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	for _, field := range fields {
		schema, err := r.schemas.read(field.ModelSchemaID)
		if err != nil {
			return persistence.NewRepositoryError("CreateFields", schemaKind, field.ModelSchemaID, err)
		}

		if schema == nil {
			return persistence.NewRepositoryError("CreateFields", schemaKind, field.ModelSchemaID, persistence.ErrModelSchemaNotFound)
		}

		if err := r.fields.write(field.ID, field); err != nil {
			return persistence.NewRepositoryError("CreateFields", fieldKind, field.ID, err)
		}
	}

	return nil
}

func (r *DynamicSchemaRepository) UpdateField(_ context.Context, field *models.FieldSchema) error {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	existing, err := r.fields.read(field.ID)
	if err != nil {
		return persistence.NewRepositoryError("UpdateField", fieldKind, field.ID, err)
	}

	if existing == nil {
		return persistence.NewRepositoryError("UpdateField", fieldKind, field.ID, persistence.ErrFieldSchemaNotFound)
	}

	err = r.fields.write(field.ID, field)
	if err != nil {
		return persistence.NewRepositoryError("UpdateField", fieldKind, field.ID, err)
	}

	return nil
}

func (r *DynamicSchemaRepository) GetField(_ context.Context, schemaID, name string) (*models.FieldSchema, error) {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	found, err := r.fields.filter(func(f *models.FieldSchema) bool {
		return f.ModelSchemaID == schemaID && f.Name == name
	})
	if err != nil {
		return nil, persistence.NewRepositoryError("GetField", fieldKind, name, err)
	}

	if len(found) == 0 {
		return nil, persistence.NewRepositoryError("GetField", fieldKind, name, persistence.ErrFieldSchemaNotFound)
	}

	return found[0], nil
}

func (r *DynamicSchemaRepository) ListFields(_ context.Context, schemaID string) ([]*models.FieldSchema, error) {
	r.schemas.mu.Lock()
	defer r.schemas.mu.Unlock()

	fields, err := r.fields.filter(func(f *models.FieldSchema) bool { return f.ModelSchemaID == schemaID })
	if err != nil {
		return nil, persistence.NewRepositoryError("ListFields", fieldKind, schemaID, err)
	}

	return fields, nil
}
