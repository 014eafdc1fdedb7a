package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
)

// DynamicSchemaRepository handles model and field schema database operations.
type DynamicSchemaRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDynamicSchemaRepository creates a new dynamic schema repository.
func NewDynamicSchemaRepository(db *sql.DB, logger *slog.Logger) *DynamicSchemaRepository {
	return &DynamicSchemaRepository{db: db, logger: logger}
}

func (r *DynamicSchemaRepository) SaveSchema(ctx context.Context, schema *models.ModelSchema) error {
	query := `
		INSERT INTO model_schemas (id, name, db_name, db_table_name, managed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			db_name = EXCLUDED.db_name,
			db_table_name = EXCLUDED.db_table_name,
			managed = EXCLUDED.managed
	`

	_, err := r.db.ExecContext(ctx, query, schema.ID, schema.Name, schema.DBName, schema.DBTableName, schema.Managed)
	if err != nil {
		return persistence.NewRepositoryError("SaveSchema", "model_schema", schema.ID, err)
	}

	return nil
}

func (r *DynamicSchemaRepository) GetSchemaByID(ctx context.Context, id string) (*models.ModelSchema, error) {
	return r.schema(ctx, "GetSchemaByID", id, "id")
}

func (r *DynamicSchemaRepository) GetSchemaByName(ctx context.Context, name string) (*models.ModelSchema, error) {
	return r.schema(ctx, "GetSchemaByName", name, "name")
}

func (r *DynamicSchemaRepository) schema(ctx context.Context, op, key, column string) (*models.ModelSchema, error) {
	var schema models.ModelSchema

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, db_name, db_table_name, managed FROM model_schemas WHERE `+column+` = $1`, key,
	).Scan(&schema.ID, &schema.Name, &schema.DBName, &schema.DBTableName, &schema.Managed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError(op, "model_schema", key, persistence.ErrModelSchemaNotFound)
		}

		return nil, persistence.NewRepositoryError(op, "model_schema", key, err)
	}

	return &schema, nil
}

// DeleteSchema removes the schema; field rows cascade.
func (r *DynamicSchemaRepository) DeleteSchema(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM model_schemas WHERE id = $1`, id)
	if err != nil {
		return persistence.NewRepositoryError("DeleteSchema", "model_schema", id, err)
	}

	return nil
}

// CreateFields inserts the batch in one transaction. A missing schema surfaces as ErrModelSchemaNotFound.
func (r *DynamicSchemaRepository) CreateFields(ctx context.Context, fields []*models.FieldSchema) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewRepositoryError("CreateFields", "field_schema", "", err)
	}

	for _, field := range fields {
		var exists bool

		err := transaction.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM model_schemas WHERE id = $1)`, field.ModelSchemaID).Scan(&exists)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewRepositoryError("CreateFields", "field_schema", field.ID, err)
		}

		if !exists {
			_ = transaction.Rollback()

			return persistence.NewRepositoryError("CreateFields", "model_schema", field.ModelSchemaID, persistence.ErrModelSchemaNotFound)
		}

		kwargsJSON, err := json.Marshal(nonNilParams(field.Kwargs))
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewRepositoryError("CreateFields", "field_schema", field.ID, fmt.Errorf("failed to marshal kwargs: %w", err))
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO field_schemas (id, model_schema_id, name, class_name, kwargs)
			VALUES ($1, $2, $3, $4, $5)
		`, field.ID, field.ModelSchemaID, field.Name, field.ClassName, kwargsJSON)
		if err != nil {
			_ = transaction.Rollback()

			return persistence.NewRepositoryError("CreateFields", "field_schema", field.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return persistence.NewRepositoryError("CreateFields", "field_schema", "", err)
	}

	return nil
}

func (r *DynamicSchemaRepository) UpdateField(ctx context.Context, field *models.FieldSchema) error {
	kwargsJSON, err := json.Marshal(nonNilParams(field.Kwargs))
	if err != nil {
		return persistence.NewRepositoryError("UpdateField", "field_schema", field.ID, fmt.Errorf("failed to marshal kwargs: %w", err))
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE field_schemas SET name = $2, class_name = $3, kwargs = $4 WHERE id = $1`,
		field.ID, field.Name, field.ClassName, kwargsJSON)
	if err != nil {
		return persistence.NewRepositoryError("UpdateField", "field_schema", field.ID, err)
	}

	return requireAffected(result, "UpdateField", "field_schema", field.ID, persistence.ErrFieldSchemaNotFound)
}

func (r *DynamicSchemaRepository) GetField(ctx context.Context, schemaID, name string) (*models.FieldSchema, error) {
	field, err := scanField(r.db.QueryRowContext(ctx, `
		SELECT id, model_schema_id, name, class_name, kwargs
		FROM field_schemas
		WHERE model_schema_id = $1 AND name = $2
	`, schemaID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("GetField", "field_schema", name, persistence.ErrFieldSchemaNotFound)
		}

		return nil, persistence.NewRepositoryError("GetField", "field_schema", name, err)
	}

	return field, nil
}

func (r *DynamicSchemaRepository) ListFields(ctx context.Context, schemaID string) ([]*models.FieldSchema, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, model_schema_id, name, class_name, kwargs
		FROM field_schemas
		WHERE model_schema_id = $1
		ORDER BY name
	`, schemaID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ListFields", "field_schema", schemaID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	fields := make([]*models.FieldSchema, 0)

	for rows.Next() {
		field, err := scanField(rows)
		if err != nil {
			return nil, persistence.NewRepositoryError("ListFields", "field_schema", schemaID, err)
		}

		fields = append(fields, field)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("ListFields", "field_schema", schemaID, err)
	}

	return fields, nil
}

func scanField(row scanner) (*models.FieldSchema, error) {
	var (
		field      models.FieldSchema
		kwargsJSON []byte
	)

	err := row.Scan(&field.ID, &field.ModelSchemaID, &field.Name, &field.ClassName, &kwargsJSON)
	if err != nil {
		return nil, err
	}

	field.Kwargs = models.Params{}

	err = unmarshalColumn(kwargsJSON, &field.Kwargs, "kwargs")
	if err != nil {
		return nil, err
	}

	return &field, nil
}
