package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/anansi/internal/auth"
	"github.com/david/anansi/internal/ingest"
	"github.com/david/anansi/internal/ledger"
	"github.com/david/anansi/internal/metrics"
	"github.com/david/anansi/internal/pipeline"
)

const jwtSecret = "test-secret"

type testEnv struct {
	srv   *Server
	token string
	store *ledger.FileStore
}

func newTestEnv(t *testing.T, run RunFunc) *testEnv {
	t.Helper()
	store := ledger.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, store.Save(context.Background(), ledger.NewSet("a", "b", "c")))

	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg).ObservePublish(nil)

	authSvc := auth.NewService(jwtSecret, "")
	token, err := authSvc.IssueToken(time.Hour)
	require.NoError(t, err)

	srv := NewServer(Config{
		Auth:   authSvc,
		Run:    run,
		Ledger: store,
		Registry: &ingest.Registry{Sources: []ingest.SourceConfig{
			{ID: "eu", Name: "EU F&T", Strategy: "api_eu_ft", SinceDays: 120, OGPOnly: true},
			{ID: "afd", Name: "AFD", Strategy: "html_afd", Disabled: true},
		}},
		Gatherer: reg,
	})
	return &testEnv{srv: srv, token: token, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/metrics", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "anansi_digest_publish_total")
}

func TestSources(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/v1/sources", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []sourceView `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 2)
	assert.Equal(t, "eu", body.Sources[0].ID)
	assert.True(t, body.Sources[0].Enabled)
	assert.Equal(t, 120, body.Sources[0].SinceDays)
	assert.False(t, body.Sources[1].Enabled)
}

func TestLedgerRequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/ledger", false).Code)

	rec := env.do(t, http.MethodGet, "/api/v1/ledger", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 3, decode(t, rec)["count"], 0)
}

func TestTriggerRunAndJobStatus(t *testing.T) {
	release := make(chan struct{})
	run := func(ctx context.Context) (pipeline.Report, error) {
		<-release
		return pipeline.Report{RunID: "r1", Outcome: pipeline.OutcomeNoNewItems}, nil
	}
	env := newTestEnv(t, run)

	rec := env.do(t, http.MethodPost, "/api/v1/run", true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID, _ := decode(t, rec)["job_id"].(string)
	require.Len(t, jobID, 8)

	busy := env.do(t, http.MethodPost, "/api/v1/run", true)
	assert.Equal(t, http.StatusConflict, busy.Code)

	status := env.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, true)
	require.Equal(t, http.StatusOK, status.Code)
	assert.Equal(t, JobRunning, decode(t, status)["status"])

	close(release)
	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, true)
		return decode(t, rec)["status"] == JobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, true))
	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "no_new_items", result["outcome"])

	next := env.do(t, http.MethodPost, "/api/v1/run", true)
	assert.Equal(t, http.StatusAccepted, next.Code)
	require.NoError(t, env.srv.Shutdown(context.Background()))
}

func TestTriggerRunFailure(t *testing.T) {
	run := func(ctx context.Context) (pipeline.Report, error) {
		return pipeline.Report{Outcome: pipeline.OutcomeFailed}, errors.New("publish digest: slack returned 500")
	}
	env := newTestEnv(t, run)

	rec := env.do(t, http.MethodPost, "/api/v1/run", true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID, _ := decode(t, rec)["job_id"].(string)

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, true)
		body := decode(t, rec)
		return body["status"] == JobFailed && body["error"] == "publish digest: slack returned 500"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJobNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/jobs/deadbeef", true).Code)
}

func TestRunNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/api/v1/run", true).Code)
}
