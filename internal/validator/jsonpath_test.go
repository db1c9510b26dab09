package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsMalformedJSONBodyPath(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{
				"id":     "a",
				"action": "http_request",
				"assertions": []interface{}{
					map[string]interface{}{
						"type":     "json_body",
						"operator": "eq",
						"path":     "$.data[",
						"value":    map[string]interface{}{"string": "x"},
					},
				},
			},
		},
	}

	res := New(ModeDefault, nil).Validate(raw)
	require.False(t, res.OK)
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e.Message, "JSONPath") {
			found = true
		}
	}
	assert.True(t, found, "expected a JSONPath diagnostic, got %+v", res.Errors)
}

func TestValidate_AcceptsWellFormedJSONBodyPath(t *testing.T) {
	raw := map[string]interface{}{
		"spec_version": "0.1",
		"meta":         map[string]interface{}{"name": "x"},
		"config":       map[string]interface{}{"base_url": "http://h"},
		"steps": []interface{}{
			map[string]interface{}{
				"id":     "a",
				"action": "http_request",
				"assertions": []interface{}{
					map[string]interface{}{
						"type":     "json_body",
						"operator": "eq",
						"path":     "$.data.id",
						"value":    map[string]interface{}{"string": "x"},
					},
				},
				"extract": []interface{}{
					map[string]interface{}{"source": "body", "path": "$.data.token", "target": "token"},
				},
			},
		},
	}

	res := New(ModeDefault, nil).Validate(raw)
	assert.True(t, res.OK, "unexpected errors: %+v", res.Errors)
}
