package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqa-systems/brain/internal/utdl"
)

func writeFakeExecutor(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runner")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const reportWritingScript = `#!/bin/sh
for i in "$@"; do
  :
done
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
  "summary": {"total": 2, "passed": 1, "failed": 1, "skipped": 0, "total_duration_ms": 42.5},
  "results": [
    {"step_id": "step_1", "status": "passed", "duration_ms": 10.5},
    {"step_id": "step_2", "status": "failed", "duration_ms": 32.0, "error": "assertion failed"}
  ]
}
EOF
exit 0
`

const hangingScript = `#!/bin/sh
sleep 5
exit 0
`

func samplePlan() utdl.Plan {
	meta := utdl.NewMeta("sample", "", nil)
	cfg := utdl.Config{BaseURL: "http://api.example.com", TimeoutMs: 5000}
	steps := []utdl.Step{
		{ID: "step_1", Action: string(utdl.ActionHTTPRequest), Params: utdl.ValueMap{"method": utdl.String("GET"), "path": utdl.String("/a")}},
		{ID: "step_2", Action: string(utdl.ActionHTTPRequest), Params: utdl.ValueMap{"method": utdl.String("GET"), "path": utdl.String("/b")}},
	}
	return utdl.NewPlan(meta, cfg, steps)
}

func TestRunPlan_ParsesReportIntoRunnerResult(t *testing.T) {
	executor := writeFakeExecutor(t, reportWritingScript)
	o := New(executor)

	result, err := o.RunPlan(context.Background(), samplePlan(), Options{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "failure", result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, StepPassed, result.Steps[0].Status)
	assert.Equal(t, StepFailed, result.Steps[1].Status)
	assert.Equal(t, "assertion failed", result.Steps[1].Error)
	assert.Equal(t, 42.5, result.TotalDurationMs)
}

func TestRunPlan_CleansUpTempFiles(t *testing.T) {
	executor := writeFakeExecutor(t, reportWritingScript)
	o := New(executor)

	dir := t.TempDir()
	t.Setenv("TMPDIR", dir)

	_, err := o.RunPlan(context.Background(), samplePlan(), Options{})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp plan/report files must be removed after the run")
}

func TestRunPlan_TimesOut(t *testing.T) {
	executor := writeFakeExecutor(t, hangingScript)
	o := New(executor)

	_, err := o.RunPlan(context.Background(), samplePlan(), Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
}

func TestRunPlan_ExecutorNotFound(t *testing.T) {
	o := New(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := o.RunPlan(context.Background(), samplePlan(), Options{})
	require.Error(t, err)
}

func TestRunPlanStreaming_EmitsExactlyTwoPlusThreeNEvents(t *testing.T) {
	executor := writeFakeExecutor(t, reportWritingScript)
	o := New(executor)

	plan := samplePlan()
	events := make(chan Event, 64)

	result, err := o.RunPlanStreaming(context.Background(), plan, Options{}, events)
	require.NoError(t, err)
	assert.False(t, result.Success)

	var collected []Event
	for e := range events {
		collected = append(collected, e)
	}

	n := len(plan.Steps)
	assert.Equal(t, 2+3*n, len(collected), "must emit exactly 2+3N events for an N-step plan")
	assert.Equal(t, EventExecutionStarted, collected[0].Type)
	assert.Equal(t, EventExecutionCompleted, collected[len(collected)-1].Type)

	for i := 0; i < n; i++ {
		base := 1 + 3*i
		assert.Equal(t, EventStepStarted, collected[base].Type)
		assert.Equal(t, EventStepCompleted, collected[base+1].Type)
		assert.Equal(t, EventProgress, collected[base+2].Type)
	}
}

func TestFindExecutor_ReportsEverySearchedPath(t *testing.T) {
	o := New("")
	t.Setenv("BRAIN_EXECUTOR_PATH", "")
	_, err := o.findExecutor("")
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%v", err), "executor")
}
