// Package derivation builds negative and robustness test cases from a
// flattened OpenAPI spec (see internal/openapi), and injects latency
// assertions into a step list. It does not build auth-flow steps and does
// not propagate tokens between steps.
package derivation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aqa-systems/brain/internal/openapi"
	"github.com/aqa-systems/brain/internal/utdl"
)

// MutationKind enumerates the field-mutation strategies negative-case
// generation can apply to a JSON-schema-described request body field.
type MutationKind string

const (
	MutationOmit             MutationKind = "omit"
	MutationWrongType        MutationKind = "wrong_type"
	MutationEmpty            MutationKind = "empty"
	MutationNull             MutationKind = "null"
	MutationFormatViolation  MutationKind = "format_violation"
	MutationEnumViolation    MutationKind = "enum_violation"
	MutationBoundViolation   MutationKind = "bound_violation"
	MutationLengthViolation  MutationKind = "length_violation"
)

// AllMutations is the default, unfiltered mutation set.
var AllMutations = []MutationKind{
	MutationOmit, MutationWrongType, MutationEmpty, MutationNull,
	MutationFormatViolation, MutationEnumViolation, MutationBoundViolation, MutationLengthViolation,
}

// RobustnessKind enumerates the per-endpoint robustness probes.
type RobustnessKind string

const (
	RobustnessInvalidHeader  RobustnessKind = "invalid_header"
	RobustnessExtraField     RobustnessKind = "extra_field"
	RobustnessMalformedJSON  RobustnessKind = "malformed_json"
	RobustnessOversizedValue RobustnessKind = "oversized_value"
)

// Budget caps how many cases derivation emits, so a wide schema cannot
// explode the plan. Every drop is reported in the returned Report rather
// than silently truncated.
type Budget struct {
	MaxCasesPerField    int
	MaxCasesPerEndpoint int
}

// DefaultBudget matches the original implementation's implicit "generate
// everything reasonable" behaviour with a conservative ceiling.
func DefaultBudget() Budget {
	return Budget{MaxCasesPerField: 8, MaxCasesPerEndpoint: 40}
}

// Report accompanies derived steps with what was skipped and why, per the
// no-silent-caps practice.
type Report struct {
	Dropped []string
}

func (r *Report) drop(reason string) { r.Dropped = append(r.Dropped, reason) }

var nonPostLikeMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true}

// NegativeCases enumerates invalid-mutation steps for each POST/PUT/PATCH
// endpoint carrying a JSON request-body schema. tags, when non-empty,
// restricts which MutationKind values are applied; excludePaths skips
// endpoints by exact path match.
func NegativeCases(spec *openapi.Spec, budget Budget, tags []string, excludePaths []string) ([]utdl.Step, *Report) {
	report := &Report{}
	allowed := mutationFilter(tags)
	excluded := toSet(excludePaths)

	var steps []utdl.Step
	for _, ep := range spec.Endpoints {
		if !nonPostLikeMethods[ep.Method] || ep.RequestBody == nil || ep.RequestBody.Schema == nil {
			continue
		}
		if excluded[ep.Path] {
			continue
		}

		props, _ := ep.RequestBody.Schema["properties"].(map[string]interface{})
		required := toSet(stringSlice(ep.RequestBody.Schema["required"]))

		fieldNames := make([]string, 0, len(props))
		for name := range props {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)

		endpointCaseCount := 0
		for _, field := range fieldNames {
			fieldSchema, _ := props[field].(map[string]interface{})
			mutations := applicableMutations(field, fieldSchema, required[field], allowed)

			fieldCaseCount := 0
			for _, mutation := range mutations {
				if budget.MaxCasesPerField > 0 && fieldCaseCount >= budget.MaxCasesPerField {
					report.drop(fmt.Sprintf("%s %s field %q: dropped remaining mutations at MaxCasesPerField=%d", ep.Method, ep.Path, field, budget.MaxCasesPerField))
					break
				}
				if budget.MaxCasesPerEndpoint > 0 && endpointCaseCount >= budget.MaxCasesPerEndpoint {
					report.drop(fmt.Sprintf("%s %s: dropped remaining cases at MaxCasesPerEndpoint=%d", ep.Method, ep.Path, budget.MaxCasesPerEndpoint))
					break
				}
				steps = append(steps, negativeStep(ep, field, mutation))
				fieldCaseCount++
				endpointCaseCount++
			}
		}
	}
	return steps, report
}

func applicableMutations(field string, schema map[string]interface{}, required bool, allowed map[MutationKind]bool) []MutationKind {
	var out []MutationKind
	add := func(k MutationKind) {
		if allowed == nil || allowed[k] {
			out = append(out, k)
		}
	}

	if required {
		add(MutationOmit)
	}
	add(MutationWrongType)
	add(MutationEmpty)
	add(MutationNull)

	if format, _ := schema["format"].(string); format != "" {
		switch format {
		case "email", "uuid", "date", "date-time", "uri":
			add(MutationFormatViolation)
		}
	}
	if _, ok := schema["enum"]; ok {
		add(MutationEnumViolation)
	}
	_, hasMin := schema["minimum"]
	_, hasMax := schema["maximum"]
	_, hasExclMin := schema["exclusiveMinimum"]
	_, hasExclMax := schema["exclusiveMaximum"]
	if hasMin || hasMax || hasExclMin || hasExclMax {
		add(MutationBoundViolation)
	}
	_, hasMinLen := schema["minLength"]
	_, hasMaxLen := schema["maxLength"]
	if hasMinLen || hasMaxLen {
		add(MutationLengthViolation)
	}
	return out
}

func negativeStep(ep openapi.Endpoint, field string, mutation MutationKind) utdl.Step {
	id := fmt.Sprintf("negative_%s_%s_%s_%s", strings.ToLower(ep.Method), slug(ep.Path), field, mutation)
	return utdl.Step{
		ID:          id,
		Action:      string(utdl.ActionHTTPRequest),
		Description: fmt.Sprintf("negative case: %s %s, field %q, mutation %q", ep.Method, ep.Path, field, mutation),
		Params: utdl.ValueMap{
			"method": utdl.String(ep.Method),
			"path":   utdl.String(ep.Path),
			"body": utdl.Value{Kind: utdl.KindObject, Object: map[string]utdl.Value{
				"__mutation_field":    utdl.String(field),
				"__mutation_strategy": utdl.String(string(mutation)),
			}},
		},
		Assertions: []utdl.Assertion{
			{Type: utdl.AssertionStatusRange, Operator: utdl.OpEq, Value: utdl.String("4xx")},
		},
	}
}

// RobustnessCases generates the four fixed robustness probes for every
// non-GET endpoint.
func RobustnessCases(spec *openapi.Spec, budget Budget) ([]utdl.Step, *Report) {
	report := &Report{}
	var steps []utdl.Step

	kinds := []RobustnessKind{
		RobustnessInvalidHeader, RobustnessExtraField, RobustnessMalformedJSON, RobustnessOversizedValue,
	}

	for _, ep := range spec.Endpoints {
		if ep.Method == "GET" {
			continue
		}
		count := 0
		for _, kind := range kinds {
			if budget.MaxCasesPerEndpoint > 0 && count >= budget.MaxCasesPerEndpoint {
				report.drop(fmt.Sprintf("%s %s: dropped remaining robustness cases at MaxCasesPerEndpoint=%d", ep.Method, ep.Path, budget.MaxCasesPerEndpoint))
				break
			}
			steps = append(steps, robustnessStep(ep, kind))
			count++
		}
	}
	return steps, report
}

func robustnessStep(ep openapi.Endpoint, kind RobustnessKind) utdl.Step {
	id := fmt.Sprintf("robustness_%s_%s_%s", strings.ToLower(ep.Method), slug(ep.Path), kind)
	params := utdl.ValueMap{
		"method": utdl.String(ep.Method),
		"path":   utdl.String(ep.Path),
	}

	switch kind {
	case RobustnessInvalidHeader:
		params["headers"] = utdl.Value{Kind: utdl.KindObject, Object: map[string]utdl.Value{
			"Content-Type": utdl.String("text/plain"),
		}}
	case RobustnessExtraField:
		params["body"] = utdl.Value{Kind: utdl.KindObject, Object: map[string]utdl.Value{
			"__proto__":    utdl.Value{Kind: utdl.KindObject, Object: map[string]utdl.Value{"polluted": utdl.Bool(true)}},
			"unexpected_extra_field": utdl.String("unexpected"),
		}}
	case RobustnessMalformedJSON:
		params["raw_body"] = utdl.String(`{"truncated": `)
	case RobustnessOversizedValue:
		params["body"] = utdl.Value{Kind: utdl.KindObject, Object: map[string]utdl.Value{
			"oversized_field": utdl.String(strings.Repeat("x", 100*1024)),
		}}
	}

	return utdl.Step{
		ID:          id,
		Action:      string(utdl.ActionHTTPRequest),
		Description: fmt.Sprintf("robustness case: %s %s, %s", ep.Method, ep.Path, kind),
		Params:      params,
		Assertions: []utdl.Assertion{
			{Type: utdl.AssertionStatusRange, Operator: utdl.OpEq, Value: utdl.String("4xx")},
		},
	}
}

// latencyRule pairs a path/method regex with a max-latency SLA in
// milliseconds; first match wins.
type latencyRule struct {
	methodPattern *regexp.Regexp
	pathPattern   *regexp.Regexp
	maxMs         int
}

var latencyRules = []latencyRule{
	{regexp.MustCompile(`^(POST)$`), regexp.MustCompile(`(?i)(login|auth|token|session)`), 2000},
	{regexp.MustCompile(`^GET$`), nil, 500},
	{regexp.MustCompile(`^(POST|PUT|PATCH)$`), nil, 1500},
	{regexp.MustCompile(`^DELETE$`), nil, 1000},
}

// InjectLatencySLA adds a `latency lt <ms>` assertion to each step whose
// endpoint matches a latency rule, unless the step already carries a
// latency assertion (idempotent).
func InjectLatencySLA(steps []utdl.Step, endpointByStepParams func(utdl.Step) (method, path string)) []utdl.Step {
	out := make([]utdl.Step, len(steps))
	copy(out, steps)

	for i, s := range out {
		if hasLatencyAssertion(s) {
			continue
		}
		method, path := endpointByStepParams(s)
		maxMs := matchLatencyRule(method, path)
		if maxMs == 0 {
			continue
		}
		s.Assertions = append(s.Assertions, utdl.Assertion{
			Type:     utdl.AssertionLatency,
			Operator: utdl.OpLt,
			Value:    utdl.Number(float64(maxMs)),
		})
		out[i] = s
	}
	return out
}

func hasLatencyAssertion(s utdl.Step) bool {
	for _, a := range s.Assertions {
		if a.Type == utdl.AssertionLatency {
			return true
		}
	}
	return false
}

func matchLatencyRule(method, path string) int {
	for _, rule := range latencyRules {
		if !rule.methodPattern.MatchString(strings.ToUpper(method)) {
			continue
		}
		if rule.pathPattern != nil && !rule.pathPattern.MatchString(path) {
			continue
		}
		return rule.maxMs
	}
	return 0
}

func mutationFilter(tags []string) map[MutationKind]bool {
	if len(tags) == 0 {
		return nil
	}
	allowed := make(map[MutationKind]bool, len(tags))
	for _, t := range tags {
		allowed[MutationKind(t)] = true
	}
	return allowed
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

func stringSlice(v interface{}) []string {
	arr, _ := v.([]interface{})
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func slug(path string) string {
	s := slugPattern.ReplaceAllString(path, "_")
	return strings.Trim(s, "_")
}
