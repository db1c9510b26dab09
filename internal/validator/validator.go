// Package validator implements structural and semantic validation of a UTDL
// plan across three strictness modes, producing structured diagnostics
// keyed by JSON pointer.
package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// Mode selects validation strictness.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeDefault Mode = "default"
	ModeLenient Mode = "lenient"
)

// standardActions is the set of actions that never produce a warning.
var standardActions = map[string]bool{
	string(utdl.ActionHTTPRequest): true,
	string(utdl.ActionWait):        true,
	"sleep":                        true, // synonym for wait, see DESIGN.md Open Question 2
}

var standardAssertionTypes = map[string]bool{
	string(utdl.AssertionStatusCode):  true,
	string(utdl.AssertionJSONBody):    true,
	string(utdl.AssertionHeader):      true,
	string(utdl.AssertionLatency):     true,
	string(utdl.AssertionStatusRange): true,
}

// lenientDemotable lists the diagnostic codes lenient mode demotes from
// error to warning.
var lenientDemotable = map[apierrors.Code]bool{
	apierrors.CodeUnknownDependency: true,
	apierrors.CodeUnknownAction:     true,
	apierrors.CodeEmptyPlan:         true,
}

// ExecutionLimits bounds plan shape for the limits validation step.
type ExecutionLimits struct {
	MaxSteps            int
	MaxParallelismHint  int
	MaxRetryBudget      int
	MaxExecutionDeadlineMs int
	MaxStepTimeoutMs    int
}

// Stats summarizes a validated plan's shape.
type Stats struct {
	Steps       int `json:"steps"`
	Assertions  int `json:"assertions"`
	Extractions int `json:"extractions"`
}

// Result is the outcome of a validation pass.
type Result struct {
	OK              bool                        `json:"ok"`
	Plan            *utdl.Plan                  `json:"plan,omitempty"`
	Errors          []*apierrors.StructuredError `json:"errors"`
	Warnings        []*apierrors.StructuredError `json:"warnings"`
	StructuredErrors []*apierrors.StructuredError `json:"structured_errors"`
	Stats           Stats                       `json:"stats"`
}

// Validator validates raw or decoded plan input.
type Validator struct {
	mode   Mode
	limits *ExecutionLimits
}

// New constructs a Validator for the given mode and optional limits.
func New(mode Mode, limits *ExecutionLimits) *Validator {
	if mode == "" {
		mode = ModeDefault
	}
	return &Validator{mode: mode, limits: limits}
}

// ValidateJSON parses text as JSON before running Validate.
func (v *Validator) ValidateJSON(text string) Result {
	var raw interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		se := apierrors.ShapeInvalid("$", fmt.Sprintf("invalid JSON: %v", err))
		return Result{Errors: []*apierrors.StructuredError{se}, StructuredErrors: []*apierrors.StructuredError{se}}
	}
	return v.Validate(raw)
}

// Validate runs the full validation pipeline over a decoded value (typically
// a map[string]interface{}, but a *utdl.Plan is also accepted directly).
func (v *Validator) Validate(raw interface{}) Result {
	var errs, warns []*apierrors.StructuredError

	plan, shapeErrs := decodeShape(raw)
	errs = append(errs, shapeErrs...)
	if plan == nil {
		return v.finalize(nil, errs, warns)
	}

	if plan.SpecVersion != utdl.SupportedSpecVersion {
		errs = append(errs, apierrors.UnsupportedVersion(plan.SpecVersion, []string{utdl.SupportedSpecVersion}))
	}

	errs = append(errs, checkDuplicateIDs(*plan)...)

	depErrs, depWarns := checkDependencies(*plan)
	errs = append(errs, depErrs...)
	warns = append(warns, depWarns...)

	if cycleErr := checkCycles(*plan); cycleErr != nil {
		errs = append(errs, cycleErr)
	}

	warns = append(warns, checkActionSanity(*plan)...)
	warns = append(warns, checkAssertionSanity(*plan)...)
	errs = append(errs, checkJSONPaths(*plan)...)

	if v.limits != nil {
		errs = append(errs, checkLimits(*plan, *v.limits)...)
	}

	if len(plan.Steps) == 0 {
		errs = append(errs, apierrors.EmptyPlan())
	}

	return v.finalize(plan, errs, warns)
}

// finalize applies mode-based severity promotion/demotion and computes
// stats, then partitions diagnostics into errors/warnings by severity.
func (v *Validator) finalize(plan *utdl.Plan, errs, warns []*apierrors.StructuredError) Result {
	all := append(append([]*apierrors.StructuredError{}, errs...), warns...)

	switch v.mode {
	case ModeStrict:
		for _, e := range all {
			e.Severity = apierrors.SeverityError
		}
	case ModeLenient:
		for _, e := range all {
			if e.Severity == apierrors.SeverityError && lenientDemotable[e.Code] {
				e.Severity = apierrors.SeverityWarning
			}
		}
	}

	var finalErrs, finalWarns []*apierrors.StructuredError
	for _, e := range all {
		if e.Severity == apierrors.SeverityError {
			finalErrs = append(finalErrs, e)
		} else {
			finalWarns = append(finalWarns, e)
		}
	}

	res := Result{
		OK:               len(finalErrs) == 0,
		Errors:           finalErrs,
		Warnings:         finalWarns,
		StructuredErrors: all,
	}
	if res.OK && plan != nil {
		res.Plan = plan
		res.Stats = computeStats(*plan)
	}
	return res
}

func computeStats(p utdl.Plan) Stats {
	stats := Stats{Steps: len(p.Steps)}
	for _, s := range p.Steps {
		stats.Assertions += len(s.Assertions)
		stats.Extractions += len(s.Extract)
	}
	return stats
}

func checkDuplicateIDs(p utdl.Plan) []*apierrors.StructuredError {
	seen := make(map[string][]int)
	for i, s := range p.Steps {
		seen[s.ID] = append(seen[s.ID], i)
	}
	var errs []*apierrors.StructuredError
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if len(seen[id]) > 1 {
			errs = append(errs, apierrors.DuplicateStepID(id, seen[id]))
		}
	}
	return errs
}

func checkDependencies(p utdl.Plan) (errs, warns []*apierrors.StructuredError) {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		ids[s.ID] = true
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				errs = append(errs, apierrors.SelfDependency(s.ID))
				continue
			}
			if !ids[dep] {
				diag := apierrors.UnknownDependency(s.ID, dep, nearestMatch(dep, p.StepIDs()))
				errs = append(errs, diag)
			}
		}
	}
	return errs, warns
}

// nearestMatch returns the candidate ID with the smallest Levenshtein
// distance to target, used to populate UnknownDependency suggestions.
func nearestMatch(target string, candidates []string) string {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein(target, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

// checkCycles runs three-color DFS over the step dependency graph.
// white = unvisited, gray = in-progress, black = done.
func checkCycles(p utdl.Plan) *apierrors.StructuredError {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	adjacency := make(map[string][]string, len(p.Steps))
	for _, s := range p.Steps {
		adjacency[s.ID] = s.DependsOn
	}
	color := make(map[string]int, len(p.Steps))
	var path []string

	var visit func(id string) *apierrors.StructuredError
	visit = func(id string) *apierrors.StructuredError {
		color[id] = gray
		path = append(path, id)
		for _, dep := range adjacency[id] {
			switch color[dep] {
			case gray:
				cyclePath := append(append([]string{}, path...), dep)
				return apierrors.CycleDetected(formatCycle(cyclePath))
			case white:
				if _, ok := adjacency[dep]; ok {
					if err := visit(dep); err != nil {
						return err
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, s := range p.Steps {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatCycle(path []string) string {
	return strings.Join(path, " → ")
}

func checkActionSanity(p utdl.Plan) []*apierrors.StructuredError {
	var warns []*apierrors.StructuredError
	for _, s := range p.Steps {
		if !standardActions[s.Action] {
			warns = append(warns, apierrors.UnknownAction(s.ID, s.Action))
		}
	}
	return warns
}

func checkAssertionSanity(p utdl.Plan) []*apierrors.StructuredError {
	var warns []*apierrors.StructuredError
	for _, s := range p.Steps {
		for _, a := range s.Assertions {
			if !standardAssertionTypes[string(a.Type)] {
				warns = append(warns, apierrors.New(apierrors.CodeUnknownAction,
					fmt.Sprintf("step %q has non-standard assertion type %q", s.ID, a.Type), 400).
					WithPointer(fmt.Sprintf("$.steps[?(@.id=='%s')].assertions", s.ID)).
					WithSeverity(apierrors.SeverityWarning))
			}
		}
	}
	return warns
}

func checkLimits(p utdl.Plan, limits ExecutionLimits) []*apierrors.StructuredError {
	var errs []*apierrors.StructuredError
	if limits.MaxSteps > 0 && len(p.Steps) > limits.MaxSteps {
		errs = append(errs, apierrors.LimitExceeded("max_steps",
			fmt.Sprintf("plan has %d steps, exceeding max_steps=%d", len(p.Steps), limits.MaxSteps)))
	}
	if limits.MaxStepTimeoutMs > 0 && p.Config.TimeoutMs > limits.MaxStepTimeoutMs {
		errs = append(errs, apierrors.LimitExceeded("max_step_timeout_ms",
			fmt.Sprintf("config timeout_ms=%d exceeds max_step_timeout_ms=%d", p.Config.TimeoutMs, limits.MaxStepTimeoutMs)))
	}
	for _, s := range p.Steps {
		if s.RecoveryPolicy == nil {
			continue
		}
		if limits.MaxRetryBudget > 0 && s.RecoveryPolicy.MaxAttempts > limits.MaxRetryBudget {
			errs = append(errs, apierrors.LimitExceeded("max_retry_budget",
				fmt.Sprintf("step %q max_attempts=%d exceeds max_retry_budget=%d", s.ID, s.RecoveryPolicy.MaxAttempts, limits.MaxRetryBudget)))
		}
	}
	return errs
}
