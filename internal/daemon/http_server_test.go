package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/sampler"
	"git.home.luguber.info/inful/buildmon/internal/session"
	"git.home.luguber.info/inful/buildmon/internal/state"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	root := t.TempDir()
	dataDir := t.TempDir()
	store, err := state.NewJSONStore(filepath.Join(dataDir, "sessions.json"))
	require.NoError(t, err)

	manager := session.NewManager(session.Options{
		ProjectRoot: root,
		BuildDir:    root,
		DetectConflicts: func() *session.ConflictReport {
			return &session.ConflictReport{Status: session.ConflictClear}
		},
	}, session.Deps{
		Snapshots:  store,
		NewSampler: func() *sampler.Sampler { return nil },
	})

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Daemon.Listen = "127.0.0.1:0"

	d, err := New(cfg, Deps{Manager: manager})
	require.NoError(t, err)
	return d
}

func doRequest(t *testing.T, d *Daemon, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	d.server.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthStatusHealthy, body.Status)
	assert.Equal(t, 0, body.ActiveSessions)
	require.Len(t, body.Checks, 3)
	for _, check := range body.Checks {
		assert.Equal(t, HealthStatusHealthy, check.Status, check.Name)
	}
}

func TestHealthEndpointUnhealthyRoot(t *testing.T) {
	d := newTestDaemon(t)
	d.cfg.Project.Root = filepath.Join(t.TempDir(), "gone")

	rec := doRequest(t, d, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, HealthStatusUnhealthy, body.Status)
}

func TestListSessionsEmpty(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestStatusUnknownSessionIs404(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodGet, "/api/sessions/deadbeef", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTerminateUnknownSessionIs404(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodDelete, "/api/sessions/deadbeef", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRejectsInvalidTarget(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodPost, "/api/sessions",
		`{"targets": ["app; rm -rf /"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestStartRejectsMalformedBody(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodPost, "/api/sessions", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutputUnknownSessionIs404(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodGet, "/api/sessions/deadbeef/output?lines=10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOutputRejectsBadLinesParameter(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodGet, "/api/sessions/deadbeef/output?lines=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsDisabledWithoutHandler(t *testing.T) {
	d := newTestDaemon(t)

	rec := doRequest(t, d, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
