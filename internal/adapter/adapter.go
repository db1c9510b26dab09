// Package adapter normalizes near-UTDL input (alias field names, missing
// meta/config) into canonical UTDL shape before validation.
package adapter

import (
	"github.com/aqa-systems/brain/pkg/apierrors"
	"github.com/google/uuid"
)

var topLevelStepAliases = []string{"tests", "scenarios", "cases"}

var assertionTypeAliases = map[string]string{
	"status": "status_code",
	"code":   "status_code",
	"body":           "json_body",
	"response_body":  "json_body",
}

var assertionValueAliases = []string{"expected", "expect"}

var extractionSourceAliases = []string{"from"}
var extractionTargetAliases = []string{"name", "as"}

var httpParamPathAliases = []string{"url", "endpoint"}

// Normalize accepts a mapping that is "almost UTDL" and returns a canonical
// UTDL mapping. Normalization is idempotent: normalizing a canonical plan
// returns an equivalent plan.
func Normalize(input map[string]interface{}) (map[string]interface{}, error) {
	out := cloneMap(input)

	if _, hasSteps := out["steps"]; !hasSteps {
		for _, alias := range topLevelStepAliases {
			if v, ok := out[alias]; ok {
				out["steps"] = v
				delete(out, alias)
				break
			}
		}
	}

	if exports, ok := out["exports"]; ok {
		if _, hasExtract := out["extract"]; !hasExtract {
			out["extract"] = exports
		}
		delete(out, "exports")
	}

	if _, ok := out["spec_version"]; !ok {
		out["spec_version"] = "0.1"
	}

	if _, ok := out["meta"]; !ok {
		out["meta"] = map[string]interface{}{
			"id":   uuid.New().String(),
			"name": "generated-plan",
		}
	} else if metaMap, ok := out["meta"].(map[string]interface{}); ok {
		if _, ok := metaMap["id"]; !ok {
			metaMap["id"] = uuid.New().String()
		}
		if _, ok := metaMap["name"]; !ok {
			metaMap["name"] = "generated-plan"
		}
	}

	baseURL, hasTopBaseURL := out["base_url"]
	if cfg, ok := out["config"].(map[string]interface{}); ok {
		if _, hasBaseURL := cfg["base_url"]; !hasBaseURL && hasTopBaseURL {
			cfg["base_url"] = baseURL
		}
		out["config"] = cfg
	} else if hasTopBaseURL {
		out["config"] = map[string]interface{}{"base_url": baseURL}
	} else if _, ok := out["config"]; !ok {
		out["config"] = map[string]interface{}{}
	}
	delete(out, "base_url")

	stepsRaw, _ := out["steps"].([]interface{})
	if len(stepsRaw) == 0 {
		return nil, apierrors.NoStepsDerived()
	}

	normalizedSteps := make([]interface{}, 0, len(stepsRaw))
	for _, s := range stepsRaw {
		stepMap, ok := s.(map[string]interface{})
		if !ok {
			normalizedSteps = append(normalizedSteps, s)
			continue
		}
		normalizedSteps = append(normalizedSteps, normalizeStep(stepMap))
	}
	out["steps"] = normalizedSteps

	return out, nil
}

func normalizeStep(step map[string]interface{}) map[string]interface{} {
	step = cloneMap(step)

	if params, ok := step["params"].(map[string]interface{}); ok {
		params = cloneMap(params)
		if _, hasPath := params["path"]; !hasPath {
			for _, alias := range httpParamPathAliases {
				if v, ok := params[alias]; ok {
					params["path"] = v
					delete(params, alias)
					break
				}
			}
		}
		step["params"] = params
	}

	if assertions, ok := step["assertions"].([]interface{}); ok {
		normalized := make([]interface{}, 0, len(assertions))
		for _, a := range assertions {
			am, ok := a.(map[string]interface{})
			if !ok {
				normalized = append(normalized, a)
				continue
			}
			normalized = append(normalized, normalizeAssertion(am))
		}
		step["assertions"] = normalized
	}

	if extract, ok := step["extract"].([]interface{}); ok {
		normalized := make([]interface{}, 0, len(extract))
		for _, e := range extract {
			em, ok := e.(map[string]interface{})
			if !ok {
				normalized = append(normalized, e)
				continue
			}
			normalized = append(normalized, normalizeExtraction(em))
		}
		step["extract"] = normalized
	}

	return step
}

func normalizeAssertion(a map[string]interface{}) map[string]interface{} {
	a = cloneMap(a)
	if t, ok := a["type"].(string); ok {
		if canonical, aliased := assertionTypeAliases[t]; aliased {
			a["type"] = canonical
		}
	}
	if _, hasValue := a["value"]; !hasValue {
		for _, alias := range assertionValueAliases {
			if v, ok := a[alias]; ok {
				a["value"] = v
				delete(a, alias)
				break
			}
		}
	}
	if _, hasOperator := a["operator"]; !hasOperator {
		a["operator"] = "eq"
	}
	return a
}

func normalizeExtraction(e map[string]interface{}) map[string]interface{} {
	e = cloneMap(e)
	if _, hasSource := e["source"]; !hasSource {
		for _, alias := range extractionSourceAliases {
			if v, ok := e[alias]; ok {
				e["source"] = v
				delete(e, alias)
				break
			}
		}
	}
	if _, hasTarget := e["target"]; !hasTarget {
		for _, alias := range extractionTargetAliases {
			if v, ok := e[alias]; ok {
				e["target"] = v
				delete(e, alias)
				break
			}
		}
	}
	return e
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
