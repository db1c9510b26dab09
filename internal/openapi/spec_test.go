package openapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_V3FromMap(t *testing.T) {
	doc := map[string]interface{}{
		"openapi": "3.0.0",
		"info":    map[string]interface{}{"title": "Widgets API"},
		"servers": []interface{}{
			map[string]interface{}{"url": "http://widgets.example.com"},
		},
		"paths": map[string]interface{}{
			"/widgets": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List widgets",
					"parameters": []interface{}{
						map[string]interface{}{"name": "limit", "in": "query", "schema": map[string]interface{}{"type": "integer"}},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "OK"},
					},
				},
			},
		},
	}

	spec, err := Parse(doc, DefaultParseOptions())
	require.NoError(t, err)
	assert.Equal(t, "Widgets API", spec.Title)
	assert.Equal(t, "http://widgets.example.com", spec.BaseURL)
	require.Len(t, spec.Endpoints, 1)
	assert.Equal(t, "GET", spec.Endpoints[0].Method)
	assert.Equal(t, "/widgets", spec.Endpoints[0].Path)

	text := SpecToRequirementText(spec)
	assert.Contains(t, text, "Widgets API")
	assert.Contains(t, text, "GET /widgets")
}

func TestParse_V2HostBasePath(t *testing.T) {
	doc := map[string]interface{}{
		"swagger":  "2.0",
		"host":     "api.example.com",
		"basePath": "/v1",
		"schemes":  []interface{}{"https"},
		"paths":    map[string]interface{}{},
	}

	spec, err := Parse(doc, DefaultParseOptions())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", spec.BaseURL)
}

func TestValidateDocument_MissingMarker(t *testing.T) {
	res := ValidateDocument(map[string]interface{}{"info": map[string]interface{}{}})
	assert.False(t, res.IsValid)
}
