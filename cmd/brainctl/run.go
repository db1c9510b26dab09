package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/history"
	"github.com/aqa-systems/brain/internal/openapi"
	"github.com/aqa-systems/brain/internal/orchestrator"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/google/uuid"
)

func cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	requirement := fs.String("requirement", "", "generate and run from a natural-language description")
	swagger := fs.String("swagger", "", "generate and run from an OpenAPI/Swagger file")
	baseURL := fs.String("base-url", "", "API base URL")
	dryRun := fs.Bool("dry-run", false, "validate the resolved plan and exit without executing it")
	report := fs.String("report", "", "write the runner report JSON here")
	save := fs.Bool("save", false, "save the execution to history")
	timeout := fs.Duration("timeout", 0, "execution timeout (0 uses the orchestrator default)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	positional := fs.Args()
	var planFile string
	if len(positional) > 0 {
		planFile = positional[0]
	}
	if planFile == "" && *requirement == "" && *swagger == "" {
		return usageError(errors.New("run requires a plan file, --requirement, or --swagger"))
	}

	bundle, err := openBundle("", false)
	if err != nil {
		return err
	}
	defer bundle.Close()

	plan, err := resolvePlan(ctx, bundle.Generator, planFile, *requirement, *swagger, *baseURL)
	if err != nil {
		return err
	}

	result := validator.New(validator.ModeDefault, nil).Validate(plan)
	if !result.OK {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "validation error %s: %s\n", e.Pointer, e.Message)
		}
		return fmt.Errorf("plan failed validation before execution")
	}

	if *dryRun {
		fmt.Printf("dry run: plan %q has %d step(s), %d assertion(s), %d extraction(s) — not executed\n",
			plan.Meta.Name, result.Stats.Steps, result.Stats.Assertions, result.Stats.Extractions)
		return nil
	}

	runOpts := orchestrator.Options{Timeout: *timeout}
	runResult, err := bundle.Orchestrator.RunPlan(ctx, plan, runOpts)
	if err != nil {
		return err
	}

	printRunResult(runResult)

	if *report != "" {
		if err := os.WriteFile(*report, runResult.RawReport, 0o644); err != nil {
			return fmt.Errorf("write report %s: %w", *report, err)
		}
	}

	if *save {
		if err := saveRunToHistory(ctx, bundle.History, planFile, plan, runResult); err != nil {
			return fmt.Errorf("save history: %w", err)
		}
	}

	if !runResult.Success {
		return fmt.Errorf("execution failed: %s", runResult.Status)
	}
	return nil
}

func resolvePlan(ctx context.Context, gen *generator.Generator, planFile, requirement, swagger, baseURL string) (utdl.Plan, error) {
	if planFile != "" {
		raw, err := readPlanFile(planFile)
		if err != nil {
			return utdl.Plan{}, err
		}
		result := validator.New(validator.ModeDefault, nil).ValidateJSON(string(raw))
		if !result.OK || result.Plan == nil {
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "validation error %s: %s\n", e.Pointer, e.Message)
			}
			return utdl.Plan{}, fmt.Errorf("%s: invalid plan", planFile)
		}
		return *result.Plan, nil
	}

	req := requirement
	url := baseURL
	if swagger != "" {
		raw, err := os.ReadFile(swagger)
		if err != nil {
			return utdl.Plan{}, fmt.Errorf("read %s: %w", swagger, err)
		}
		spec, err := openapi.Parse(raw, openapi.DefaultParseOptions())
		if err != nil {
			return utdl.Plan{}, fmt.Errorf("parse openapi spec: %w", err)
		}
		if req == "" {
			req = openapi.SpecToRequirementText(spec)
		}
		if url == "" {
			url = spec.BaseURL
		}
	}

	plan, _, err := gen.Generate(ctx, req, url, generator.DefaultOptions())
	return plan, err
}

func printRunResult(r orchestrator.RunnerResult) {
	fmt.Printf("status: %s (%.0fms)\n", r.Status, r.TotalDurationMs)
	for _, step := range r.Steps {
		line := fmt.Sprintf("  %-20s %-8s %6.0fms", step.StepID, step.Status, step.DurationMs)
		if step.Error != "" {
			line += " — " + step.Error
		}
		fmt.Println(line)
	}
}

func saveRunToHistory(ctx context.Context, backend history.Backend, planFile string, plan utdl.Plan, r orchestrator.RunnerResult) error {
	if backend == nil {
		return errors.New("no history backend configured")
	}
	var passed, failed, skipped int
	for _, s := range r.Steps {
		switch s.Status {
		case orchestrator.StepPassed:
			passed++
		case orchestrator.StepFailed:
			failed++
		case orchestrator.StepSkipped:
			skipped++
		}
	}
	status := history.StatusError
	switch r.Status {
	case "success":
		status = history.StatusSuccess
	case "failure":
		status = history.StatusFailure
	}

	record := history.Record{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		PlanFile:     planFile,
		PlanName:     plan.Meta.Name,
		Status:       status,
		DurationMs:   r.TotalDurationMs,
		TotalSteps:   len(r.Steps),
		PassedSteps:  passed,
		FailedSteps:  failed,
		SkippedSteps: skipped,
		RunnerReport: r.RawReport,
	}
	return backend.Save(ctx, record)
}
