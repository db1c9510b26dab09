// Package orchestrator invokes the external executor binary against a
// validated UTDL plan, parses its report, and synthesizes a sequential
// stream of progress events for live consumers.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// DefaultTimeout matches the original implementation's default wall-clock
// budget for one execution.
const DefaultTimeout = 300 * time.Second

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// AssertionResult is one evaluated assertion inside a step result.
type AssertionResult struct {
	Type    string `json:"type"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// StepResult is one step's outcome inside a RunnerResult.
type StepResult struct {
	StepID            string            `json:"step_id"`
	Status            StepStatus        `json:"status"`
	DurationMs        float64           `json:"duration_ms"`
	Error             string            `json:"error,omitempty"`
	AssertionsResults []AssertionResult `json:"assertions_results,omitempty"`
	Extractions       map[string]string `json:"extractions,omitempty"`
}

// RunnerResult is the orchestrator's parsed view of one execution.
type RunnerResult struct {
	Success         bool            `json:"success"`
	Status          string          `json:"status"`
	Steps           []StepResult    `json:"steps"`
	TotalDurationMs float64         `json:"total_duration_ms"`
	RawReport       json.RawMessage `json:"raw_report"`
}

// Options configures one run_plan invocation.
type Options struct {
	ExecutorPath string        // explicit override, highest precedence
	Timeout      time.Duration // 0 uses DefaultTimeout
}

// Event is one synthetic streaming event emitted during a run for live
// consumers (the control API's /ws/execute channel).
type Event struct {
	Type       string      `json:"type"`
	StepID     string      `json:"step_id,omitempty"`
	StepIndex  int         `json:"step_index,omitempty"`
	StepCount  int         `json:"step_count,omitempty"`
	Result     *StepResult `json:"result,omitempty"`
	Summary    *RunnerResult `json:"summary,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

const (
	EventExecutionStarted   = "execution_started"
	EventStepStarted        = "step_started"
	EventStepCompleted      = "step_completed"
	EventProgress           = "progress"
	EventExecutionCompleted = "execution_completed"
)

// Orchestrator runs validated plans through the external executor binary.
type Orchestrator struct {
	// ExecutorPathOverride is tried in findExecutor right after the
	// per-call Options.ExecutorPath and before every other resolution step
	// (env variable, project paths, PATH lookup).
	ExecutorPathOverride string
}

// New constructs an Orchestrator. executorPathOverride may be empty.
func New(executorPathOverride string) *Orchestrator {
	return &Orchestrator{ExecutorPathOverride: executorPathOverride}
}

// RunPlan serializes plan to a temp file, invokes the executor, parses its
// report, and always cleans up temp files, even on error.
func (o *Orchestrator) RunPlan(ctx context.Context, plan utdl.Plan, opts Options) (RunnerResult, error) {
	executorPath, err := o.findExecutor(opts.ExecutorPath)
	if err != nil {
		return RunnerResult{}, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	planFile, err := os.CreateTemp("", "brain-plan-*.json")
	if err != nil {
		return RunnerResult{}, apierrors.Internal("failed to create plan temp file", err)
	}
	planPath := planFile.Name()
	defer os.Remove(planPath)

	planJSON, err := json.Marshal(plan)
	if err != nil {
		planFile.Close()
		return RunnerResult{}, apierrors.Internal("failed to encode plan", err)
	}
	if _, err := planFile.Write(planJSON); err != nil {
		planFile.Close()
		return RunnerResult{}, apierrors.Internal("failed to write plan temp file", err)
	}
	planFile.Close()

	reportFile, err := os.CreateTemp("", "brain-report-*.json")
	if err != nil {
		return RunnerResult{}, apierrors.Internal("failed to create report temp file", err)
	}
	reportPath := reportFile.Name()
	reportFile.Close()
	defer os.Remove(reportPath)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, executorPath, "execute", "--file", planPath, "--output", reportPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return RunnerResult{}, apierrors.Timeout("plan execution")
	}
	_ = runErr // a non-zero exit code does not itself abort report parsing

	reportBytes, err := os.ReadFile(reportPath)
	if os.IsNotExist(err) || len(reportBytes) == 0 {
		// The executor crashed (or was killed) before producing any
		// report; this is a distinct outcome from a malformed report.
		return RunnerResult{Status: "error"}, nil
	}
	if err != nil {
		return RunnerResult{}, apierrors.Internal("failed to read executor report", err)
	}

	return parseReport(reportBytes)
}

// parseReport decodes the executor's report JSON using tidwall/gjson for
// tolerant field access, so executor-specific extensions to the results[]
// objects don't force a strict schema.
func parseReport(raw []byte) (RunnerResult, error) {
	if !gjson.ValidBytes(raw) {
		return RunnerResult{}, apierrors.ReportUnparseable(string(raw), fmt.Errorf("report is not valid JSON"))
	}

	parsed := gjson.ParseBytes(raw)
	summary := parsed.Get("summary")

	var steps []StepResult
	for _, r := range parsed.Get("results").Array() {
		step := StepResult{
			StepID:     r.Get("step_id").String(),
			Status:     StepStatus(r.Get("status").String()),
			DurationMs: r.Get("duration_ms").Float(),
			Error:      r.Get("error").String(),
		}
		for _, a := range r.Get("assertions_results").Array() {
			step.AssertionsResults = append(step.AssertionsResults, AssertionResult{
				Type:    a.Get("type").String(),
				Passed:  a.Get("passed").Bool(),
				Message: a.Get("message").String(),
			})
		}
		if extractions := r.Get("extractions"); extractions.IsObject() {
			step.Extractions = map[string]string{}
			extractions.ForEach(func(k, v gjson.Result) bool {
				step.Extractions[k.String()] = v.String()
				return true
			})
		}
		steps = append(steps, step)
	}

	failed := int(summary.Get("failed").Int())
	result := RunnerResult{
		Success:         failed == 0,
		Steps:           steps,
		TotalDurationMs: summary.Get("total_duration_ms").Float(),
		RawReport:       json.RawMessage(raw),
	}
	if result.Success {
		result.Status = "success"
	} else {
		result.Status = "failure"
	}
	return result, nil
}

// ResolveExecutor exposes findExecutor's search for callers (health checks,
// workspace status) that need to know whether an executor is resolvable
// without running a plan.
func (o *Orchestrator) ResolveExecutor() (string, error) {
	return o.findExecutor("")
}

// findExecutor resolves the executor binary: explicit override →
// BRAIN_EXECUTOR_PATH → project-relative release/debug path → home cargo
// path → system install paths → PATH lookup.
func (o *Orchestrator) findExecutor(override string) (string, error) {
	var tried []string

	tryPath := func(p string) (string, bool) {
		if p == "" {
			return "", false
		}
		tried = append(tried, p)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
		return "", false
	}

	if p, ok := tryPath(override); ok {
		return p, nil
	}
	if p, ok := tryPath(o.ExecutorPathOverride); ok {
		return p, nil
	}
	if p, ok := tryPath(os.Getenv("BRAIN_EXECUTOR_PATH")); ok {
		return p, nil
	}
	if p, ok := tryPath(filepath.Join("runner", "target", "release", "runner")); ok {
		return p, nil
	}
	if p, ok := tryPath(filepath.Join("runner", "target", "debug", "runner")); ok {
		return p, nil
	}
	if u, err := user.Current(); err == nil {
		if p, ok := tryPath(filepath.Join(u.HomeDir, ".cargo", "bin", "runner")); ok {
			return p, nil
		}
	}
	for _, p := range []string{"/usr/local/bin/runner", "/usr/bin/runner"} {
		if resolved, ok := tryPath(p); ok {
			return resolved, nil
		}
	}
	if p, err := exec.LookPath("runner"); err == nil {
		tried = append(tried, p)
		return p, nil
	}

	return "", apierrors.ExecutorNotFound(tried)
}
