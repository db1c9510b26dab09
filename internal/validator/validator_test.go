package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_HappyPath(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{
				"id":     "a",
				"action": "http_request",
				"params": map[string]interface{}{"method": "GET", "path": "/"},
			},
		},
	}

	v := New(ModeDefault, nil)
	res := v.Validate(raw)

	require.True(t, res.OK)
	assert.Empty(t, res.Errors)
	assert.Equal(t, Stats{Steps: 1, Assertions: 0, Extractions: 0}, res.Stats)
}

func TestValidate_CycleRejected(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{"id": "a", "action": "http_request", "depends_on": []interface{}{"b"}},
			map[string]interface{}{"id": "b", "action": "http_request", "depends_on": []interface{}{"a"}},
		},
	}

	v := New(ModeDefault, nil)
	res := v.Validate(raw)

	require.False(t, res.OK)
	found := false
	for _, e := range res.Errors {
		if e.Code == "E1005" {
			found = true
			assert.Contains(t, e.Message, "→")
			assert.Equal(t, "$.steps", e.Pointer)
		}
	}
	assert.True(t, found, "expected a cycle diagnostic")
}

func TestValidate_UnknownDependencyLenientVsDefault(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{"id": "a", "action": "http_request", "depends_on": []interface{}{"ghost"}},
			map[string]interface{}{"id": "ghostly", "action": "http_request"},
		},
	}

	defaultResult := New(ModeDefault, nil).Validate(raw)
	assert.False(t, defaultResult.OK)

	lenientResult := New(ModeLenient, nil).Validate(raw)
	assert.True(t, lenientResult.OK)
	require.Len(t, lenientResult.Warnings, 1)
	assert.Contains(t, lenientResult.Warnings[0].Suggestion, "ghostly")
}

func TestValidate_EmptyPlan(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps":        []interface{}{},
	}

	defaultResult := New(ModeDefault, nil).Validate(raw)
	assert.False(t, defaultResult.OK)

	lenientResult := New(ModeLenient, nil).Validate(raw)
	assert.True(t, lenientResult.OK)
	assert.Len(t, lenientResult.Warnings, 1)
}

func TestValidate_StrictPromotesWarnings(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{"id": "a", "action": "non_standard_action"},
		},
	}

	res := New(ModeStrict, nil).Validate(raw)
	assert.False(t, res.OK)
}
