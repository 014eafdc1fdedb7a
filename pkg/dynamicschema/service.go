// Package dynamicschema manages the relational table definitions that back imported vector layers.
package dynamicschema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/google/uuid"
)

// DatastoreDB is the database alias recorded on every schema.
const DatastoreDB = "datastore"

var (
	// ErrModelMissing is returned when the schema a task works on was deleted in the meantime.
	ErrModelMissing = errors.New("dynamic model does not exist")
	// ErrInvalidFieldName is returned for fields without a name or with an unknown class.
	ErrInvalidFieldName = errors.New("invalid field definition")
)

// Service creates, copies and drops dynamic schemas.
type Service struct {
	repo   persistence.DynamicSchemaRepository
	tables TableEditor
	logger *slog.Logger
}

func New(repo persistence.DynamicSchemaRepository, tables TableEditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, tables: tables, logger: logger.With("module", "dynamicschema")}
}

// Get returns the schema named name, wrapping persistence.ErrModelSchemaNotFound when absent.
func (s *Service) Get(ctx context.Context, name string) (*models.ModelSchema, error) {
	return s.repo.GetSchemaByName(ctx, name)
}

// Exists reports whether a schema named name exists.
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.repo.GetSchemaByName(ctx, name)
	if persistence.IsModelSchemaNotFound(err) {
		return false, nil
	}

	return err == nil, err
}

// EnsureSchema returns the schema named name, creating it when missing.
func (s *Service) EnsureSchema(ctx context.Context, name string) (*models.ModelSchema, error) {
	schema, err := s.repo.GetSchemaByName(ctx, name)
	if err == nil {
		return schema, nil
	}

	if !persistence.IsModelSchemaNotFound(err) {
		return nil, err
	}

	schema = &models.ModelSchema{
		ID:          uuid.NewString(),
		Name:        name,
		DBName:      DatastoreDB,
		DBTableName: name,
		Managed:     false,
	}

	err = s.repo.SaveSchema(ctx, schema)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Dynamic schema created", "schema", name)

	return schema, nil
}

// CreateFields stores one batch of fields on schemaID. With overwrite, fields already present are
// updated in place by name.
func (s *Service) CreateFields(ctx context.Context, schemaID string, specs []FieldSpec, overwrite bool) error {
	schema, err := s.repo.GetSchemaByID(ctx, schemaID)
	if persistence.IsModelSchemaNotFound(err) {
		return fmt.Errorf("The model with id %s does not exists.: %w", schemaID, ErrModelMissing)
	}

	if err != nil {
		return err
	}

	var rows []*models.FieldSchema

	for _, spec := range specs {
		if spec.Name == "" || spec.ClassName == "" {
			s.logger.ErrorContext(ctx, "Field without name or class", "schema", schema.Name, "field", spec.Name)

			return fmt.Errorf("Error during the field creation. The field or class_name is None {name: %q, class_name: %q}: %w", spec.Name, spec.ClassName, ErrInvalidFieldName)
		}

		kwargs := models.Params{"null": spec.Null}
		if spec.ClassName == ClassChar {
			kwargs["max_length"] = 255
		}

		if spec.Dim > 0 {
			kwargs["dim"] = spec.Dim
		}

		if overwrite {
			existing, err := s.repo.GetField(ctx, schema.ID, spec.Name)
			if err == nil {
				existing.ClassName = spec.ClassName
				existing.Kwargs = kwargs

				if err := s.repo.UpdateField(ctx, existing); err != nil {
					return err
				}

				continue
			}

			if !persistence.IsFieldSchemaNotFound(err) {
				return err
			}
		}

		rows = append(rows, &models.FieldSchema{
			ID:            uuid.NewString(),
			ModelSchemaID: schema.ID,
			Name:          spec.Name,
			ClassName:     spec.ClassName,
			Kwargs:        kwargs,
		})
	}

	if len(rows) == 0 {
		return nil
	}

	return s.repo.CreateFields(ctx, rows)
}

// Drop deletes the schema named name with its fields and drops its table. A missing schema is not an
// error, and a failing table drop is only logged.
func (s *Service) Drop(ctx context.Context, name string) error {
	name = layerName(name)

	schema, err := s.repo.GetSchemaByName(ctx, name)
	if persistence.IsModelSchemaNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	err = s.repo.DeleteSchema(ctx, schema.ID)
	if err != nil {
		return err
	}

	if err := s.tables.DropTable(ctx, schema.DBTableName); err != nil {
		s.logger.WarnContext(ctx, "Failed to drop dynamic table", "table", schema.DBTableName, "error", err)
	}

	s.logger.InfoContext(ctx, "Dynamic schema dropped", "schema", name)

	return nil
}

// Copy duplicates the schema from into a schema named to, fields included. An existing target is
// returned untouched.
func (s *Service) Copy(ctx context.Context, from, to string) (*models.ModelSchema, error) {
	from, to = layerName(from), layerName(to)

	source, err := s.repo.GetSchemaByName(ctx, from)
	if persistence.IsModelSchemaNotFound(err) {
		return nil, fmt.Errorf("The dynamic model %s does not exists: %w", from, ErrModelMissing)
	}

	if err != nil {
		return nil, err
	}

	if target, err := s.repo.GetSchemaByName(ctx, to); err == nil {
		return target, nil
	}

	target, err := s.EnsureSchema(ctx, to)
	if err != nil {
		return nil, err
	}

	fields, err := s.repo.ListFields(ctx, source.ID)
	if err != nil {
		return nil, err
	}

	copies := make([]*models.FieldSchema, 0, len(fields))
	for _, f := range fields {
		copies = append(copies, &models.FieldSchema{
			ID:            uuid.NewString(),
			ModelSchemaID: target.ID,
			Name:          f.Name,
			ClassName:     f.ClassName,
			Kwargs:        f.Kwargs.Clone(),
		})
	}

	if len(copies) > 0 {
		err = s.repo.CreateFields(ctx, copies)
		if err != nil {
			return nil, err
		}
	}

	return target, nil
}

// CopyTable duplicates the data table of from into to.
func (s *Service) CopyTable(ctx context.Context, from, to string) error {
	return s.tables.CopyTable(ctx, layerName(from), layerName(to))
}

// layerName strips a workspace prefix.
func layerName(alternate string) string {
	if _, name, ok := strings.Cut(alternate, ":"); ok {
		return name
	}

	return alternate
}
