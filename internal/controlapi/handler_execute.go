package controlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/history"
	"github.com/aqa-systems/brain/internal/openapi"
	"github.com/aqa-systems/brain/internal/orchestrator"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

type executeRequest struct {
	Plan           json.RawMessage `json:"plan,omitempty"`
	PlanFile       string          `json:"plan_file,omitempty"`
	Requirement    string          `json:"requirement,omitempty"`
	OpenAPI        json.RawMessage `json:"openapi,omitempty"`
	BaseURL        string          `json:"base_url,omitempty"`
	DryRun         bool            `json:"dry_run,omitempty"`
	SaveReport     bool            `json:"save_report,omitempty"`
	TimeoutSeconds float64         `json:"timeout_seconds,omitempty"`
}

type executeResponse struct {
	Success    bool                     `json:"success"`
	DryRun     bool                     `json:"dry_run,omitempty"`
	HistoryID  string                   `json:"history_id,omitempty"`
	Result     *orchestrator.RunnerResult `json:"result,omitempty"`
	PlanStats  *validator.Stats         `json:"plan_stats,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierrors.ShapeInvalid("$", "invalid JSON body: "+err.Error()))
		return
	}

	ctx := r.Context()
	plan, err := s.resolvePlan(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	v := validator.New(validator.ModeDefault, nil)
	result := v.Validate(plan)
	if !result.OK {
		writeError(w, r, apierrors.Wrap(apierrors.CodeShapeInvalid, "plan failed validation before execution", http.StatusUnprocessableEntity, nil).
			WithContext("errors", result.Errors))
		return
	}

	if req.DryRun {
		writeJSON(w, http.StatusOK, executeResponse{Success: true, DryRun: true, PlanStats: &result.Stats})
		return
	}

	if s.Orchestrator == nil {
		writeError(w, r, apierrors.InvalidConfig("orchestrator", "not configured"))
		return
	}

	opts := orchestrator.Options{}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds * float64(time.Second))
	}

	start := time.Now()
	runResult, runErr := s.Orchestrator.RunPlan(r.Context(), plan, opts)
	if runErr != nil {
		if s.metrics != nil {
			s.metrics.recordExecution("error")
		}
		writeError(w, r, runErr)
		return
	}

	if s.metrics != nil {
		s.metrics.recordExecution(runResult.Status)
	}

	resp := executeResponse{Success: true, Result: &runResult}

	if req.SaveReport && s.History != nil {
		record := history.Record{
			ID:           uuid.New().String(),
			Timestamp:    start.UTC(),
			PlanName:     plan.Meta.Name,
			Status:       historyStatus(runResult),
			DurationMs:   runResult.TotalDurationMs,
			TotalSteps:   len(runResult.Steps),
			RunnerReport: runResult.RawReport,
		}
		for _, step := range runResult.Steps {
			switch step.Status {
			case orchestrator.StepPassed:
				record.PassedSteps++
			case orchestrator.StepFailed:
				record.FailedSteps++
			case orchestrator.StepSkipped:
				record.SkippedSteps++
			}
		}
		if err := s.History.Save(r.Context(), record); err == nil {
			resp.HistoryID = record.ID
		} else {
			s.log.Warnf("failed to save execution history: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func historyStatus(r orchestrator.RunnerResult) history.Status {
	switch r.Status {
	case "success":
		return history.StatusSuccess
	case "failure":
		return history.StatusFailure
	default:
		return history.StatusError
	}
}

// resolvePlan determines the plan to execute from, in priority order: an
// inline plan body, a plan file path, or a requirement/OpenAPI document to
// generate one from.
func (s *Server) resolvePlan(ctx context.Context, req executeRequest) (utdl.Plan, error) {
	switch {
	case len(req.Plan) > 0:
		var plan utdl.Plan
		if err := json.Unmarshal(req.Plan, &plan); err != nil {
			return utdl.Plan{}, apierrors.ShapeInvalid("$.plan", "invalid plan JSON: "+err.Error())
		}
		return plan, nil

	case req.PlanFile != "":
		data, err := os.ReadFile(req.PlanFile)
		if err != nil {
			return utdl.Plan{}, apierrors.NotFound("plan_file", req.PlanFile)
		}
		var plan utdl.Plan
		if err := json.Unmarshal(data, &plan); err != nil {
			return utdl.Plan{}, apierrors.ShapeInvalid("$", "invalid plan JSON in "+req.PlanFile+": "+err.Error())
		}
		return plan, nil

	case req.Requirement != "" || len(req.OpenAPI) > 0:
		if s.Generator == nil {
			return utdl.Plan{}, apierrors.InvalidConfig("generator", "not configured")
		}
		requirement := req.Requirement
		if len(req.OpenAPI) > 0 {
			var source interface{}
			if err := json.Unmarshal(req.OpenAPI, &source); err != nil {
				return utdl.Plan{}, apierrors.ShapeInvalid("$.openapi", "invalid OpenAPI JSON: "+err.Error())
			}
			spec, err := openapi.Parse(source, openapi.DefaultParseOptions())
			if err != nil {
				return utdl.Plan{}, apierrors.Wrap(apierrors.CodeShapeInvalid, "failed to parse OpenAPI document", http.StatusUnprocessableEntity, err)
			}
			if requirement == "" {
				requirement = openapi.SpecToRequirementText(spec)
			}
		}
		plan, _, err := s.Generator.Generate(ctx, requirement, req.BaseURL, generator.DefaultOptions())
		return plan, err

	default:
		return utdl.Plan{}, apierrors.InvalidConfig("plan", "one of plan, plan_file, requirement, or openapi is required")
	}
}
