package dynamicschema

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/geoimporter/pkg/dataset"
	"github.com/dukex/geoimporter/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, tables TableEditor) *Service {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return New(p.DynamicSchemaRepository(), tables, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGeometryClass(t *testing.T) {
	class, dim := GeometryClass("Multi Polygon")
	assert.Equal(t, ClassMultiPolygon, class)
	assert.Equal(t, 2, dim)

	class, dim = GeometryClass("3D Point")
	assert.Equal(t, ClassPoint, class)
	assert.Equal(t, 3, dim)

	class, _ = GeometryClass("Circular String")
	assert.Empty(t, class)
}

func TestFieldSpecs(t *testing.T) {
	layer := dataset.Layer{
		Name:           "roads",
		GeometryColumn: "geom",
		GeometryType:   "Line String",
		Fields:         []dataset.Field{{Name: "NAME", Type: "String"}, {Name: "lanes", Type: "Integer"}, {Name: "raw", Type: "Binary"}},
	}

	specs := FieldSpecs(layer, func(name string) string { return "Multi " + name })

	assert.Equal(t, []FieldSpec{
		{Name: "name", ClassName: ClassChar, Null: true},
		{Name: "lanes", ClassName: ClassInteger, Null: true},
		{Name: "raw", ClassName: "", Null: true},
		{Name: "geom", ClassName: ClassMultiLineString, Null: true, Dim: 2},
	}, specs)

	layer.GeometryType = dataset.GeometryCollection
	assert.Len(t, FieldSpecs(layer, nil), 3)
}

func TestChunk(t *testing.T) {
	specs := make([]FieldSpec, 65)
	for i := range specs {
		specs[i] = FieldSpec{Name: fmt.Sprintf("f%d", i)}
	}

	batches := Chunk(specs, BatchSize)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 30)
	assert.Len(t, batches[1], 30)
	assert.Len(t, batches[2], 5)
	assert.Nil(t, Chunk(nil, BatchSize))
}

func TestSpecsFromKwarg(t *testing.T) {
	specs, err := SpecsFromKwarg([]any{map[string]any{"name": "geom", "class_name": "point", "null": true, "dim": float64(3)}})
	require.NoError(t, err)
	assert.Equal(t, []FieldSpec{{Name: "geom", ClassName: ClassPoint, Null: true, Dim: 3}}, specs)
}

func TestService_CreateFields(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryTableEditor())

	schema, err := s.EnsureSchema(ctx, "roads")
	require.NoError(t, err)

	again, err := s.EnsureSchema(ctx, "roads")
	require.NoError(t, err)
	assert.Equal(t, schema.ID, again.ID)

	require.NoError(t, s.CreateFields(ctx, schema.ID, []FieldSpec{{Name: "name", ClassName: ClassChar, Null: true}}, false))

	fields, err := s.repo.ListFields(ctx, schema.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, 255, fields[0].Kwargs.Int("max_length"))

	require.NoError(t, s.CreateFields(ctx, schema.ID, []FieldSpec{
		{Name: "name", ClassName: ClassJSON, Null: true},
		{Name: "lanes", ClassName: ClassInteger, Null: true},
	}, true))

	fields, err = s.repo.ListFields(ctx, schema.ID)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	byName := map[string]string{}
	for _, f := range fields {
		byName[f.Name] = f.ClassName
	}

	assert.Equal(t, ClassJSON, byName["name"])
	assert.Equal(t, ClassInteger, byName["lanes"])
}

func TestService_CreateFields_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryTableEditor())

	err := s.CreateFields(ctx, "a7a8f3a2-58c5-4d3a-9b0e-9f2a3b0a4c11", []FieldSpec{{Name: "x", ClassName: ClassChar}}, false)
	assert.ErrorIs(t, err, ErrModelMissing)

	schema, err := s.EnsureSchema(ctx, "roads")
	require.NoError(t, err)

	err = s.CreateFields(ctx, schema.ID, []FieldSpec{{Name: "raw"}}, false)
	assert.ErrorIs(t, err, ErrInvalidFieldName)
}

func TestService_DropAndCopy(t *testing.T) {
	ctx := context.Background()
	tables := NewMemoryTableEditor("roads")
	s := newTestService(t, tables)

	schema, err := s.EnsureSchema(ctx, "roads")
	require.NoError(t, err)
	require.NoError(t, s.CreateFields(ctx, schema.ID, []FieldSpec{{Name: "name", ClassName: ClassChar, Null: true}}, false))

	copied, err := s.Copy(ctx, "geonode:roads", "geonode:roads_copy")
	require.NoError(t, err)
	assert.Equal(t, "roads_copy", copied.DBTableName)

	fields, err := s.repo.ListFields(ctx, copied.ID)
	require.NoError(t, err)
	assert.Len(t, fields, 1)

	require.NoError(t, s.CopyTable(ctx, "geonode:roads", "geonode:roads_copy"))
	assert.True(t, tables.Has("roads_copy"))

	_, err = s.Copy(ctx, "missing", "other")
	assert.ErrorIs(t, err, ErrModelMissing)

	require.NoError(t, s.Drop(ctx, "geonode:roads"))
	assert.False(t, tables.Has("roads"))

	exists, err := s.Exists(ctx, "roads")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Drop(ctx, "roads"), "dropping twice is a no-op")
}

func TestPostgresTableEditor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	defer db.Close()

	mock.ExpectExec(`DROP TABLE IF EXISTS "roads"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE "roads_copy" AS TABLE "roads"`).WillReturnResult(sqlmock.NewResult(0, 0))

	editor := NewPostgresTableEditor(db)

	require.NoError(t, editor.DropTable(context.Background(), "roads"))
	require.NoError(t, editor.CopyTable(context.Background(), "roads", "roads_copy"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
