package derivation

import (
	"testing"

	"github.com/aqa-systems/brain/internal/openapi"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widgetSpec() *openapi.Spec {
	return &openapi.Spec{
		BaseURL: "http://widgets.example.com",
		Title:   "Widgets API",
		Endpoints: []openapi.Endpoint{
			{
				Method: "GET",
				Path:   "/widgets",
			},
			{
				Method: "POST",
				Path:   "/widgets",
				RequestBody: &openapi.RequestBody{
					Required: true,
					Schema: map[string]interface{}{
						"required": []interface{}{"name"},
						"properties": map[string]interface{}{
							"name": map[string]interface{}{
								"type":      "string",
								"minLength": float64(1),
								"maxLength": float64(64),
							},
							"email": map[string]interface{}{
								"type":   "string",
								"format": "email",
							},
							"role": map[string]interface{}{
								"type": "string",
								"enum": []interface{}{"admin", "member"},
							},
							"priority": map[string]interface{}{
								"type":    "integer",
								"minimum": float64(1),
								"maximum": float64(5),
							},
						},
					},
				},
			},
			{
				Method: "POST",
				Path:   "/auth/login",
				RequestBody: &openapi.RequestBody{
					Required: true,
					Schema: map[string]interface{}{
						"required":   []interface{}{"username"},
						"properties": map[string]interface{}{"username": map[string]interface{}{"type": "string"}},
					},
				},
			},
		},
	}
}

func TestNegativeCases_CoversMutationTaxonomy(t *testing.T) {
	spec := widgetSpec()
	steps, report := NegativeCases(spec, DefaultBudget(), nil, nil)
	require.Empty(t, report.Dropped)
	require.NotEmpty(t, steps)

	kinds := make(map[string]bool)
	for _, s := range steps {
		kinds[s.ID] = true
		require.Len(t, s.Assertions, 1)
		assert.Equal(t, utdl.AssertionStatusRange, s.Assertions[0].Type)
	}

	assert.True(t, kinds["negative_post_widgets_name_omit"])
	assert.True(t, kinds["negative_post_widgets_email_format_violation"])
	assert.True(t, kinds["negative_post_widgets_role_enum_violation"])
	assert.True(t, kinds["negative_post_widgets_priority_bound_violation"])
	assert.True(t, kinds["negative_post_widgets_name_length_violation"])
	assert.False(t, kinds["negative_get_widgets_"], "GET endpoints never derive negative cases")
}

func TestNegativeCases_ExcludePath(t *testing.T) {
	spec := widgetSpec()
	steps, _ := NegativeCases(spec, DefaultBudget(), nil, []string{"/widgets"})
	for _, s := range steps {
		assert.NotContains(t, s.Description, "/widgets,")
	}
}

func TestNegativeCases_TagFilter(t *testing.T) {
	spec := widgetSpec()
	steps, _ := NegativeCases(spec, DefaultBudget(), []string{string(MutationOmit)}, nil)
	for _, s := range steps {
		assert.Contains(t, s.Description, string(MutationOmit))
	}
}

func TestNegativeCases_ExclusiveBoundsTriggerBoundViolation(t *testing.T) {
	spec := &openapi.Spec{
		BaseURL: "http://widgets.example.com",
		Endpoints: []openapi.Endpoint{
			{
				Method: "POST",
				Path:   "/widgets",
				RequestBody: &openapi.RequestBody{
					Required: true,
					Schema: map[string]interface{}{
						"properties": map[string]interface{}{
							"quantity": map[string]interface{}{
								"type":             "integer",
								"exclusiveMinimum": float64(0),
								"exclusiveMaximum": float64(100),
							},
						},
					},
				},
			},
		},
	}

	steps, report := NegativeCases(spec, DefaultBudget(), nil, nil)
	require.Empty(t, report.Dropped)

	found := false
	for _, s := range steps {
		if s.ID == "negative_post_widgets_quantity_bound_violation" {
			found = true
		}
	}
	assert.True(t, found, "exclusiveMinimum/exclusiveMaximum-only schema must still derive a bound_violation case")
}

func TestNegativeCases_BudgetDropsAreReported(t *testing.T) {
	spec := widgetSpec()
	budget := Budget{MaxCasesPerField: 1, MaxCasesPerEndpoint: 1000}
	steps, report := NegativeCases(spec, budget, nil, nil)
	assert.NotEmpty(t, report.Dropped)
	for _, s := range steps {
		_ = s
	}
}

func TestRobustnessCases_SkipsGET(t *testing.T) {
	spec := widgetSpec()
	steps, report := RobustnessCases(spec, DefaultBudget())
	require.Empty(t, report.Dropped)
	require.Len(t, steps, 4*2) // two non-GET endpoints x four kinds

	for _, s := range steps {
		require.Len(t, s.Assertions, 1)
		assert.Equal(t, utdl.AssertionStatusRange, s.Assertions[0].Type)
		assert.Equal(t, utdl.String("4xx"), s.Assertions[0].Value)
	}
}

func TestRobustnessCases_ExtraFieldIncludesProtoPollution(t *testing.T) {
	spec := widgetSpec()
	steps, _ := RobustnessCases(spec, DefaultBudget())
	found := false
	for _, s := range steps {
		if s.ID == "robustness_post_widgets_extra_field" {
			found = true
			_, hasProto := s.Params["body"].Object["__proto__"]
			assert.True(t, hasProto)
		}
	}
	assert.True(t, found)
}

func TestInjectLatencySLA_IdempotentAndMethodAware(t *testing.T) {
	steps := []utdl.Step{
		{ID: "a", Description: "GET /widgets"},
		{ID: "b", Description: "POST /auth/login", Assertions: []utdl.Assertion{
			{Type: utdl.AssertionLatency, Operator: utdl.OpLt, Value: utdl.Number(9999)},
		}},
	}

	out := InjectLatencySLA(steps, func(s utdl.Step) (string, string) {
		if s.ID == "a" {
			return "GET", "/widgets"
		}
		return "POST", "/auth/login"
	})

	require.Len(t, out[0].Assertions, 1)
	assert.Equal(t, utdl.AssertionLatency, out[0].Assertions[0].Type)
	assert.Equal(t, utdl.Number(500), out[0].Assertions[0].Value)

	require.Len(t, out[1].Assertions, 1)
	assert.Equal(t, utdl.Number(9999), out[1].Assertions[0].Value, "existing latency assertion left untouched")
}
