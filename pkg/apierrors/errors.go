// Package apierrors provides the unified structured-error type used across
// the plan lifecycle: validation, ingestion, generation, caching,
// orchestration, and the control API all return *StructuredError for
// failures callers should branch on.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error code in the E1xxx-E6xxx space.
type Code string

// Severity classifies how a diagnostic should be treated by callers.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

const (
	// E1xxx: validation (shape, dependency, cycle, action, limits, empty plan)
	CodeShapeInvalid        Code = "E1001"
	CodeDuplicateStepID     Code = "E1002"
	CodeUnknownDependency   Code = "E1003"
	CodeSelfDependency      Code = "E1004"
	CodeCycleDetected       Code = "E1005"
	CodeUnknownAction       Code = "E1006"
	CodeLimitExceeded       Code = "E1007"
	CodeEmptyPlan           Code = "E1008"
	CodeUnsupportedVersion  Code = "E1009"

	// E2xxx: HTTP (executor side)
	CodeHTTPRequestFailed Code = "E2001"
	CodeHTTPBadResponse   Code = "E2002"

	// E3xxx: assertion (executor side)
	CodeAssertionFailed   Code = "E3001"
	CodeExtractionFailed  Code = "E3002"
	CodeJSONPathInvalid   Code = "E3003"

	// E4xxx: configuration/environment
	CodeExecutorNotFound  Code = "E4001"
	CodeMissingAPIKey     Code = "E4002"
	CodeInvalidConfig     Code = "E4003"
	CodeStorageBackend    Code = "E4004"

	// E5xxx: internal
	CodeReportUnparseable Code = "E5001"
	CodeTimeout           Code = "E5002"
	CodeInternal          Code = "E5003"
	CodeStorageCorruption Code = "E5004"

	// E6xxx: generator/control
	CodeGenerationExhausted Code = "E6001"
	CodeNoStepsDerived      Code = "E6002"
	CodeAllProvidersFailed  Code = "E6003"
	CodeCacheUnavailable    Code = "E6004"
	CodeNotFound            Code = "E6005"
	CodeAlreadyExists       Code = "E6006"
	CodeConflict            Code = "E6007"
)

// StructuredError is the one error type every component returns for
// failures a caller should branch on.
type StructuredError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Pointer    string                 `json:"pointer,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Severity   Severity               `json:"severity"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *StructuredError) Error() string {
	if e.Pointer != "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s at %s: %v", e.Code, e.Message, e.Pointer, e.Err)
		}
		return fmt.Sprintf("[%s] %s at %s", e.Code, e.Message, e.Pointer)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *StructuredError) Unwrap() error { return e.Err }

// WithPointer sets the JSON pointer the diagnostic refers to.
func (e *StructuredError) WithPointer(pointer string) *StructuredError {
	e.Pointer = pointer
	return e
}

// WithSuggestion attaches an actionable suggestion (e.g. nearest-match IDs).
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// WithContext merges a key/value into the error's context map.
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity (used by lenient/strict mode
// promotion and demotion in the validator).
func (e *StructuredError) WithSeverity(sev Severity) *StructuredError {
	e.Severity = sev
	return e
}

// New creates a StructuredError at error severity.
func New(code Code, message string, httpStatus int) *StructuredError {
	return &StructuredError{Code: code, Message: message, HTTPStatus: httpStatus, Severity: SeverityError}
}

// Wrap wraps an existing error inside a StructuredError.
func Wrap(code Code, message string, httpStatus int, err error) *StructuredError {
	return &StructuredError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err, Severity: SeverityError}
}

// Validation constructors (E1xxx)

func ShapeInvalid(pointer, reason string) *StructuredError {
	return New(CodeShapeInvalid, reason, http.StatusBadRequest).WithPointer(pointer)
}

func DuplicateStepID(id string, indices []int) *StructuredError {
	return New(CodeDuplicateStepID, fmt.Sprintf("duplicate step id %q", id), http.StatusBadRequest).
		WithPointer("$.steps").
		WithContext("id", id).
		WithContext("indices", indices)
}

func UnknownDependency(stepID, depID, nearestMatch string) *StructuredError {
	e := New(CodeUnknownDependency, fmt.Sprintf("step %q depends on unknown id %q", stepID, depID), http.StatusBadRequest).
		WithPointer(fmt.Sprintf("$.steps[?(@.id=='%s')].depends_on", stepID)).
		WithContext("step_id", stepID).
		WithContext("depends_on", depID)
	if nearestMatch != "" {
		e.WithSuggestion(fmt.Sprintf("did you mean %q?", nearestMatch))
	}
	return e
}

func SelfDependency(stepID string) *StructuredError {
	return New(CodeSelfDependency, fmt.Sprintf("step %q depends on itself", stepID), http.StatusBadRequest).
		WithPointer(fmt.Sprintf("$.steps[?(@.id=='%s')].depends_on", stepID))
}

func CycleDetected(path string) *StructuredError {
	return New(CodeCycleDetected, fmt.Sprintf("dependency cycle detected: %s", path), http.StatusBadRequest).
		WithPointer("$.steps").
		WithContext("cycle", path)
}

func UnknownAction(stepID, action string) *StructuredError {
	return New(CodeUnknownAction, fmt.Sprintf("step %q has non-standard action %q", stepID, action), http.StatusBadRequest).
		WithPointer(fmt.Sprintf("$.steps[?(@.id=='%s')].action", stepID)).
		WithSeverity(SeverityWarning)
}

func LimitExceeded(limit, reason string) *StructuredError {
	return New(CodeLimitExceeded, reason, http.StatusBadRequest).WithContext("limit", limit)
}

func EmptyPlan() *StructuredError {
	return New(CodeEmptyPlan, "plan has no steps", http.StatusBadRequest).WithPointer("$.steps")
}

func UnsupportedVersion(got string, supported []string) *StructuredError {
	return New(CodeUnsupportedVersion, fmt.Sprintf("unsupported spec_version %q", got), http.StatusBadRequest).
		WithPointer("$.spec_version").
		WithContext("supported", supported)
}

// Configuration/environment constructors (E4xxx)

func ExecutorNotFound(searchPaths []string) *StructuredError {
	return New(CodeExecutorNotFound, "executor binary not found", http.StatusFailedDependency).
		WithSuggestion("set BRAIN_EXECUTOR_PATH or place the executor on PATH").
		WithContext("searched", searchPaths)
}

func MissingAPIKey(provider string) *StructuredError {
	return New(CodeMissingAPIKey, fmt.Sprintf("no API key configured for provider %q", provider), http.StatusFailedDependency).
		WithSuggestion(fmt.Sprintf("set the API key environment variable for %s", provider))
}

func InvalidConfig(field, reason string) *StructuredError {
	return New(CodeInvalidConfig, reason, http.StatusBadRequest).WithContext("field", field)
}

// Internal constructors (E5xxx)

func ReportUnparseable(raw string, err error) *StructuredError {
	return Wrap(CodeReportUnparseable, "executor report is not valid JSON", http.StatusBadGateway, err).
		WithContext("raw", raw)
}

func Timeout(operation string) *StructuredError {
	return New(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout).
		WithContext("operation", operation)
}

func Internal(message string, err error) *StructuredError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

// Generator/control constructors (E6xxx)

func GenerationExhausted(attempts int, last error) *StructuredError {
	return Wrap(CodeGenerationExhausted, "exhausted self-correction attempts", http.StatusUnprocessableEntity, last).
		WithContext("attempts", attempts)
}

func NoStepsDerived() *StructuredError {
	return New(CodeNoStepsDerived, "no steps could be derived", http.StatusUnprocessableEntity)
}

func AllProvidersFailed(attempts map[string]string) *StructuredError {
	return New(CodeAllProvidersFailed, "all configured providers failed", http.StatusBadGateway).
		WithContext("attempts", attempts)
}

func NotFound(resource, id string) *StructuredError {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithContext("resource", resource).
		WithContext("id", id)
}

func AlreadyExists(resource, id string) *StructuredError {
	return New(CodeAlreadyExists, "resource already exists", http.StatusConflict).
		WithContext("resource", resource).
		WithContext("id", id)
}

func Conflict(message string) *StructuredError {
	return New(CodeConflict, message, http.StatusConflict)
}

// Helpers

func As(err error) (*StructuredError, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func HTTPStatus(err error) int {
	if se, ok := As(err); ok && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
