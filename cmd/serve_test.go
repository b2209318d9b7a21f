package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdata/rera-ingest/internal/config"
	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/monitoring"
	"github.com/propdata/rera-ingest/internal/store"
)

func newServeTest(t *testing.T) (store.Store, http.Handler) {
	t.Helper()
	cfg = &config.Config{
		Server:     config.ServerConfig{CORSOrigins: []string{"*"}},
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24},
	}
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st, newRouter(st, monitoring.NewCollector(st))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServeHealthz(t *testing.T) {
	_, h := newServeTest(t)

	rec := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeStatus(t *testing.T) {
	st, h := newServeTest(t)

	run, err := st.StartRun(context.Background(), model.RunModeFull, "bundle")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(context.Background(), run.ID, model.RunCounts{Processed: 3, Created: 3}))

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, int64(3), snap.RecordsCreated)
}

func TestServeRuns(t *testing.T) {
	st, h := newServeTest(t)

	run, err := st.StartRun(context.Background(), model.RunModeDelta, "portal")
	require.NoError(t, err)

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []model.IngestRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec = get(t, h, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/api/runs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeRegistrationNotFound(t *testing.T) {
	_, h := newServeTest(t)

	rec := get(t, h, "/api/registrations/MH/DOESNOTEXIST")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestServeProvenanceEmpty(t *testing.T) {
	st, h := newServeTest(t)

	run, err := st.StartRun(context.Background(), model.RunModeFull, "bundle")
	require.NoError(t, err)
	require.NoError(t, st.RecordFailure(context.Background(), &model.ProvenanceRecord{
		ID:             uuid.NewString(),
		RunID:          run.ID,
		StateCode:      "MH",
		RegistrationNo: "P52100001234",
		Decision:       model.DecisionFailed,
		Error:          "missing identity fields",
		CreatedAt:      time.Now().UTC(),
	}))

	rec := get(t, h, "/api/registrations/MH/P52100001234/provenance")
	require.Equal(t, http.StatusOK, rec.Code)
	var provs []model.ProvenanceRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &provs))
	require.Len(t, provs, 1)
	assert.Equal(t, model.DecisionFailed, provs[0].Decision)

	// Lookups normalize path params, so the lowercased hyphenated form a
	// portal page shows still hits the stored key.
	rec = get(t, h, "/api/registrations/mh/p-52100001234/provenance")
	require.Equal(t, http.StatusOK, rec.Code)
	provs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &provs))
	require.Len(t, provs, 1)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=7", nil)
	assert.Equal(t, 7, queryInt(req, "limit", 50))
	assert.Equal(t, 50, queryInt(req, "missing", 50))

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=-3", nil)
	assert.Equal(t, 50, queryInt(req, "limit", 50))

	req = httptest.NewRequest(http.MethodGet, "/api/runs?limit=abc", nil)
	assert.Equal(t, 50, queryInt(req, "limit", 50))
}
