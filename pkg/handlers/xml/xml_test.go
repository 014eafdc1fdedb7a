package xml

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/geoimporter/pkg/catalog"
	"github.com/dukex/geoimporter/pkg/handlers"
	"github.com/dukex/geoimporter/pkg/handlers/common"
	"github.com/dukex/geoimporter/pkg/models"
	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/dukex/geoimporter/pkg/persistence/file"
	"github.com/dukex/geoimporter/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executions struct {
	execution *models.ExecutionRequest
	evaluated int
}

func (e *executions) GetExecution(context.Context, string) (*models.ExecutionRequest, error) {
	return e.execution, nil
}

func (e *executions) UpdateExecutionRequestStatus(_ context.Context, _ string, update persistence.ExecutionUpdate) (*models.ExecutionRequest, error) {
	update.Apply(e.execution, e.execution.LastUpdated)

	return e.execution, nil
}

func (e *executions) EvaluateExecutionProgress(context.Context, string, string) error {
	e.evaluated++

	return nil
}

func writeDocument(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "metadata.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestHandler_IsValid(t *testing.T) {
	h := New(&common.Deps{})

	good := writeDocument(t, `<?xml version="1.0"?><gmd:MD_Metadata xmlns:gmd="http://www.isotc211.org/2005/gmd"></gmd:MD_Metadata>`)
	require.NoError(t, h.IsValid(context.Background(), map[string]string{"base_file": good}, "admin", "exec-1"))

	bad := writeDocument(t, `<root><unclosed></root>`)

	var validationErr *handlers.ValidationError

	err := h.IsValid(context.Background(), map[string]string{"base_file": bad}, "admin", "exec-1")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, handlers.ValidationXML, validationErr.Kind)
	assert.Contains(t, validationErr.Detail, "Uploaded document is not XML or is invalid")
}

func TestHandler_ImportResource_AttachesToTheNamedDataset(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())

	resource := testutil.CreateTestResource(testutil.WithAlternate("geonode:roads"))
	require.NoError(t, store.ResourceRepository().Save(ctx, resource))

	path := writeDocument(t, `<metadata/>`)
	execution := testutil.CreateTestExecution(
		testutil.WithFiles(map[string]string{"base_file": path}),
		testutil.WithInput(models.ParamDatasetTitle, "roads"),
	)

	execs := &executions{execution: execution}
	h := New(&common.Deps{
		Executions:   execs,
		Resources:    store.ResourceRepository(),
		HandlerInfos: store.ResourceHandlerInfoRepository(),
		Catalog:      catalog.New(store.ResourceRepository(), store.ResourceHandlerInfoRepository(), "http://localhost", logger),
		Logger:       logger,
	})

	err := h.ImportResource(ctx, execution.Files(), execution.ExecID)
	require.NoError(t, err)

	stored, err := store.ResourceRepository().GetByAlternate(ctx, "geonode:roads")
	require.NoError(t, err)

	assert.Equal(t, path, stored.XMLFile)
	assert.True(t, stored.MetadataUploaded)
	assert.Equal(t, resource.ID, execution.ResourceID)
	assert.Equal(t, 1, execs.evaluated)
}

func TestHandler_ImportResource_UnknownDataset(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	execution := testutil.CreateTestExecution(testutil.WithInput(models.ParamDatasetTitle, "nowhere"))

	h := New(&common.Deps{Executions: &executions{execution: execution}, Resources: store.ResourceRepository()})

	err := h.ImportResource(context.Background(), execution.Files(), execution.ExecID)
	require.EqualError(t, err, "The dataset nowhere does not exists")
}
