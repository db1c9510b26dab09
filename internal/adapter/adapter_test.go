package adapter

import (
	"testing"

	"github.com/aqa-systems/brain/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_AliasFixup(t *testing.T) {
	input := map[string]interface{}{
		"base_url": "http://h",
		"tests": []interface{}{
			map[string]interface{}{
				"id":     "a",
				"action": "http_request",
				"assertions": []interface{}{
					map[string]interface{}{"type": "status", "expected": float64(200)},
				},
			},
		},
	}

	out, err := Normalize(input)
	require.NoError(t, err)

	steps, ok := out["steps"].([]interface{})
	require.True(t, ok)
	require.Len(t, steps, 1)

	step := steps[0].(map[string]interface{})
	assertions := step["assertions"].([]interface{})
	a := assertions[0].(map[string]interface{})
	assert.Equal(t, "status_code", a["type"])
	assert.Equal(t, "eq", a["operator"])
	assert.Equal(t, float64(200), a["value"])

	v := validator.New(validator.ModeDefault, nil)
	res := v.Validate(out)
	assert.True(t, res.OK, "%+v", res.Errors)
}

func TestNormalize_Idempotent(t *testing.T) {
	input := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"id": "x", "name": "n"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{"id": "a", "action": "http_request"},
		},
	}

	first, err := Normalize(input)
	require.NoError(t, err)
	second, err := Normalize(first)
	require.NoError(t, err)

	assert.Equal(t, first["spec_version"], second["spec_version"])
	assert.Equal(t, first["steps"], second["steps"])
}

func TestNormalize_NoStepsRejected(t *testing.T) {
	_, err := Normalize(map[string]interface{}{"base_url": "http://h"})
	require.Error(t, err)
}
