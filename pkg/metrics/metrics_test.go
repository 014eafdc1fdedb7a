package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/geoimporter/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ObserveTask(t *testing.T) {
	m := New()

	m.ObserveTask("importer.import_resource", models.TaskStateStarted, 0)
	m.ObserveTask("importer.import_resource", models.TaskStateSuccess, 2*time.Second)
	m.ObserveTask("importer.import_resource", models.TaskStateSuccess, time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.tasksTotal.WithLabelValues("importer.import_resource", "SUCCESS")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.tasksTotal.WithLabelValues("importer.import_resource", "STARTED")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.taskDuration, "geoimporter_task_duration_seconds"))
}

func TestManager_ObserveExecutionAndChords(t *testing.T) {
	m := New()

	m.ObserveExecution(models.ActionImport, models.ExecutionStatusFinished)
	m.ObserveChordsPending(3)

	assert.InDelta(t, 1, testutil.ToFloat64(m.executionsTotal.WithLabelValues("import", "finished")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.chordsPending), 0)
}

func TestManager_Handler(t *testing.T) {
	m := New()
	m.ObserveTask("importer.rollback", models.TaskStateFailure, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `geoimporter_tasks_total{status="FAILURE",task="importer.rollback"} 1`)
}
