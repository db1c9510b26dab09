// Package utdl is the typed in-memory representation of a UTDL test plan:
// Plan, Meta, Config, Step, Assertion, Extraction, RecoveryPolicy. The model
// is the validation boundary for per-field constraints (types, ranges,
// enums); cross-entity constraints (DAG acyclicity, reference integrity) are
// the Validator's job, not this package's.
package utdl

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SupportedSpecVersion is the only accepted plan spec_version.
const SupportedSpecVersion = "0.1"

// ActionKind enumerates standard step actions. Unknown values are tolerated
// by the model (stored verbatim) and flagged as a warning by the Validator.
type ActionKind string

const (
	ActionHTTPRequest ActionKind = "http_request"
	ActionWait        ActionKind = "wait"
)

// AssertionType enumerates the assertion kinds a step can declare.
// status_range is accepted for forward compatibility (see Open Question
// resolution in DESIGN.md); Derivation's negative and robustness cases emit
// it with the value "4xx".
type AssertionType string

const (
	AssertionStatusCode  AssertionType = "status_code"
	AssertionJSONBody    AssertionType = "json_body"
	AssertionHeader      AssertionType = "header"
	AssertionLatency     AssertionType = "latency"
	AssertionStatusRange AssertionType = "status_range"
)

// AssertionOperator enumerates comparison operators.
type AssertionOperator string

const (
	OpEq       AssertionOperator = "eq"
	OpNeq      AssertionOperator = "neq"
	OpLt       AssertionOperator = "lt"
	OpGt       AssertionOperator = "gt"
	OpContains AssertionOperator = "contains"
)

// ExtractionSource enumerates where an Extraction reads from.
type ExtractionSource string

const (
	ExtractBody   ExtractionSource = "body"
	ExtractHeader ExtractionSource = "header"
)

// RecoveryStrategy enumerates how a step recovers from failure.
type RecoveryStrategy string

const (
	RecoveryRetry    RecoveryStrategy = "retry"
	RecoveryFailFast RecoveryStrategy = "fail_fast"
	RecoveryIgnore   RecoveryStrategy = "ignore"
)

// RecoveryPolicy governs per-step retry/backoff behaviour.
type RecoveryPolicy struct {
	Strategy      RecoveryStrategy `json:"strategy"`
	MaxAttempts   int              `json:"max_attempts"`
	BackoffMs     int              `json:"backoff_ms"`
	BackoffFactor float64          `json:"backoff_factor"`
}

// DefaultRecoveryPolicy mirrors the original implementation's defaults.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		Strategy:      RecoveryFailFast,
		MaxAttempts:   3,
		BackoffMs:     500,
		BackoffFactor: 2.0,
	}
}

// Normalize clamps fields to their valid ranges. Returns the clamped policy;
// callers that need strict rejection should check the field bounds
// themselves before calling Normalize.
func (r RecoveryPolicy) Normalize() RecoveryPolicy {
	if r.Strategy == "" {
		r.Strategy = RecoveryFailFast
	}
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
	if r.MaxAttempts > 10 {
		r.MaxAttempts = 10
	}
	if r.BackoffMs < 0 {
		r.BackoffMs = 0
	}
	if r.BackoffFactor < 1.0 {
		r.BackoffFactor = 1.0
	}
	return r
}

// Assertion asserts a condition against an executed step's response.
type Assertion struct {
	Type     AssertionType     `json:"type"`
	Operator AssertionOperator `json:"operator"`
	Value    Value             `json:"value"`
	Path     string            `json:"path,omitempty"`
}

// Extraction captures a value from a response into a named variable for
// reuse by downstream steps.
type Extraction struct {
	Source ExtractionSource `json:"source"`
	Path   string            `json:"path"`
	Target string            `json:"target"`
}

// Step is one node in the plan's dependency DAG.
type Step struct {
	ID             string            `json:"id"`
	Action         string            `json:"action"`
	Description    string            `json:"description,omitempty"`
	DependsOn      []string          `json:"depends_on,omitempty"`
	Params         ValueMap          `json:"params,omitempty"`
	Assertions     []Assertion       `json:"assertions,omitempty"`
	Extract        []Extraction      `json:"extract,omitempty"`
	RecoveryPolicy *RecoveryPolicy   `json:"recovery_policy,omitempty"`
}

// Meta carries plan-level identity and presentation metadata.
type Meta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewMeta builds a Meta with a generated id and created_at when absent.
func NewMeta(name, description string, tags []string) Meta {
	return Meta{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Tags:        tags,
		CreatedAt:   time.Now().UTC(),
	}
}

// Config carries plan-level execution configuration.
type Config struct {
	BaseURL       string   `json:"base_url"`
	TimeoutMs     int      `json:"timeout_ms"`
	GlobalHeaders map[string]string `json:"global_headers,omitempty"`
	Variables     ValueMap `json:"variables,omitempty"`
}

// DefaultConfig mirrors the original implementation's field defaults.
func DefaultConfig(baseURL string) Config {
	return Config{BaseURL: baseURL, TimeoutMs: 5000}
}

// Plan is the root UTDL document.
type Plan struct {
	SpecVersion string `json:"spec_version"`
	Meta        Meta   `json:"meta"`
	Config      Config `json:"config"`
	Steps       []Step `json:"steps"`
}

// NewPlan constructs a Plan with the fixed spec_version from the given meta,
// config and steps; a zero Meta is kept as given, not filled in. It does
// not validate cross-entity invariants
// (DAG, reference integrity) -- callers must still invoke the Validator.
func NewPlan(meta Meta, cfg Config, steps []Step) Plan {
	return Plan{
		SpecVersion: SupportedSpecVersion,
		Meta:        meta,
		Config:      cfg,
		Steps:       steps,
	}
}

// StepByID returns the step with the given id and whether it was found.
func (p Plan) StepByID(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// StepIDs returns the ordered list of step ids.
func (p Plan) StepIDs() []string {
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}

// NormalizeStepID trims whitespace the way the original validator does
// before treating an id as empty.
func NormalizeStepID(id string) string {
	return strings.TrimSpace(id)
}
