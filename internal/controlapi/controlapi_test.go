package controlapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/history"
	"github.com/aqa-systems/brain/internal/llm"
	"github.com/aqa-systems/brain/internal/orchestrator"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/internal/versionstore"
	"github.com/aqa-systems/brain/internal/workspace"
)

func writeFakeExecutor(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runner")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const passingReportScript = `#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "--output" ]; then
    out="$arg"
  fi
  prev="$arg"
done
cat > "$out" <<'EOF'
{
  "plan": {"id": "p1", "name": "sample"},
  "summary": {"total": 1, "passed": 1, "failed": 0, "skipped": 0, "total_duration_ms": 5.0},
  "results": [{"step_id": "step_1", "status": "passed", "duration_ms": 5.0}]
}
EOF
exit 0
`

func samplePlan() utdl.Plan {
	meta := utdl.NewMeta("sample", "", nil)
	cfg := utdl.Config{BaseURL: "http://api.example.com", TimeoutMs: 5000}
	steps := []utdl.Step{
		{ID: "step_1", Action: string(utdl.ActionHTTPRequest), Params: utdl.ValueMap{"method": utdl.String("GET"), "path": utdl.String("/a")}},
	}
	return utdl.NewPlan(meta, cfg, steps)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	hist, err := history.NewObjectStoreBackend(t.TempDir(), false)
	require.NoError(t, err)

	gen := generator.New(llm.NewMock(0), validator.New(validator.ModeDefault, nil), nil, "mock-model")

	executor := writeFakeExecutor(t, passingReportScript)

	srv := &Server{
		Generator:    gen,
		Validator:    validator.New(validator.ModeDefault, nil),
		Orchestrator: orchestrator.New(executor),
		History:      hist,
		Versions:     versionstore.NewMemoryStore(),
		Workspace:    workspace.Config{Root: t.TempDir(), HistoryBackend: "objectstore"},
	}
	srv.metrics = newMetrics()
	srv.audit = newAuditLog(50, nil)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(req.Context())
	rec := httptest.NewRecorder()
	handler := wrapWithRequestID(srv.routes())
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReportsComponents(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Components, 3)
}

func TestHandleGenerate_ReturnsPlanFromMockProvider(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/generate", generateRequest{
		Requirement: "test the login endpoint",
		BaseURL:     "http://api.example.com",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "mock", resp.Provider)
}

func TestHandleGenerate_RejectsEmptyRequirement(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/generate", generateRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
}

func TestHandleValidate_ReportsOKForWellFormedPlan(t *testing.T) {
	srv := newTestServer(t)
	plan := samplePlan()
	rec := doRequest(t, srv, http.MethodPost, "/validate", map[string]interface{}{"plan": plan, "mode": "default"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 1, resp.Stats.Steps)
}

func TestHandleValidate_RejectsUnknownMode(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/validate", map[string]interface{}{"plan": samplePlan(), "mode": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecute_RunsInlinePlanAndSavesHistory(t *testing.T) {
	srv := newTestServer(t)
	plan := samplePlan()
	rec := doRequest(t, srv, http.MethodPost, "/execute", map[string]interface{}{"plan": plan, "save_report": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.NotEmpty(t, resp.HistoryID)

	listRec := doRequest(t, srv, http.MethodGet, "/history", nil)
	assert.Equal(t, http.StatusOK, listRec.Code)
}

func TestHandleExecute_DryRunSkipsOrchestrator(t *testing.T) {
	srv := newTestServer(t)
	srv.Orchestrator = nil // a dry run must not need the orchestrator at all
	plan := samplePlan()
	rec := doRequest(t, srv, http.MethodPost, "/execute", map[string]interface{}{"plan": plan, "dry_run": true})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.DryRun)
	require.NotNil(t, resp.PlanStats)
	assert.Equal(t, 1, resp.PlanStats.Steps)
}

func TestHandleExecute_RequiresAPlanSource(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/execute", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePlans_SaveListGetDiffRestore(t *testing.T) {
	srv := newTestServer(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	plan := samplePlan()
	_, err := srv.Versions.Save(ctx, "sample", plan, versionstore.SourceManual, "v1", nil, "", "")
	require.NoError(t, err)

	plan2 := plan
	plan2.Steps = append(plan2.Steps, utdl.Step{ID: "step_2", Action: string(utdl.ActionHTTPRequest), Params: utdl.ValueMap{"method": utdl.String("GET"), "path": utdl.String("/b")}})
	_, err = srv.Versions.Save(ctx, "sample", plan2, versionstore.SourceManual, "v2", nil, "", "")
	require.NoError(t, err)

	listRec := doRequest(t, srv, http.MethodGet, "/plans", nil)
	assert.Equal(t, http.StatusOK, listRec.Code)

	versionsRec := doRequest(t, srv, http.MethodGet, "/plans/sample/versions", nil)
	assert.Equal(t, http.StatusOK, versionsRec.Code)

	diffRec := doRequest(t, srv, http.MethodGet, "/plans/sample/diff?a=1&b=2", nil)
	assert.Equal(t, http.StatusOK, diffRec.Code)

	restoreRec := doRequest(t, srv, http.MethodPost, "/plans/sample/versions/1/restore", map[string]string{"description": "rollback"})
	assert.Equal(t, http.StatusOK, restoreRec.Code)
}

func TestHandleWorkspace_InitThenStatusReportsInitialized(t *testing.T) {
	srv := newTestServer(t)
	initRec := doRequest(t, srv, http.MethodPost, "/workspace/init", nil)
	assert.Equal(t, http.StatusOK, initRec.Code)

	statusRec := doRequest(t, srv, http.MethodGet, "/workspace/status", nil)
	assert.Equal(t, http.StatusOK, statusRec.Code)
	assert.Contains(t, statusRec.Body.String(), `"initialized":true`)
}

func TestHandleAdminAudit_RecordsPriorRequests(t *testing.T) {
	srv := newTestServer(t)
	handler := wrapWithAudit(srv.audit, wrapWithRequestID(srv.routes()))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	auditRec := doRequest(t, srv, http.MethodGet, "/admin/audit", nil)
	assert.Equal(t, http.StatusOK, auditRec.Code)
	assert.Contains(t, auditRec.Body.String(), "/health")
}

func TestServiceDescriptor_ReflectsWiredDependencies(t *testing.T) {
	srv := newTestServer(t)
	svc := NewService(srv, ":0", nil)

	desc := svc.Descriptor()
	assert.Equal(t, "controlapi", desc.Domain)
	assert.Contains(t, desc.Capabilities, "history")
	assert.Contains(t, desc.Capabilities, "plan-versions")

	bareSrv := &Server{Generator: srv.Generator, Validator: srv.Validator, Orchestrator: srv.Orchestrator}
	bareSvc := NewService(bareSrv, ":0", nil)
	bareDesc := bareSvc.Descriptor()
	assert.NotContains(t, bareDesc.Capabilities, "history")
	assert.NotContains(t, bareDesc.Capabilities, "plan-versions")
}

func TestWrapWithCORS_ShortCircuitsPreflight(t *testing.T) {
	srv := newTestServer(t)
	handler := wrapWithCORS(srv.routes())
	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWrapWithRequestID_MintsWhenAbsentAndPropagatesWhenPresent(t *testing.T) {
	srv := newTestServer(t)
	handler := wrapWithRequestID(srv.routes())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.Header.Set(requestIDHeader, "fixed-id")
	handler.ServeHTTP(rec2, req2)
	assert.Equal(t, "fixed-id", rec2.Header().Get(requestIDHeader))
}
