package validator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
	"github.com/google/uuid"
)

func newID() string   { return uuid.New().String() }
func nowUTC() time.Time { return time.Now().UTC() }

// decodeShape decodes a loosely-typed value into a utdl.Plan, producing
// fine-grained JSON-pointer-keyed diagnostics for shape errors rather than a
// single opaque decode error. Accepts *utdl.Plan/utdl.Plan directly for
// callers that already hold a typed plan (e.g. the Generator's
// self-correction loop).
func decodeShape(raw interface{}) (*utdl.Plan, []*apierrors.StructuredError) {
	switch v := raw.(type) {
	case *utdl.Plan:
		return v, nil
	case utdl.Plan:
		return &v, nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, []*apierrors.StructuredError{
			apierrors.ShapeInvalid("$", fmt.Sprintf("expected a JSON object at root, got %T", raw)),
		}
	}

	var errs []*apierrors.StructuredError
	plan := &utdl.Plan{}

	if sv, ok := m["spec_version"]; ok {
		if s, ok := sv.(string); ok {
			plan.SpecVersion = s
		} else {
			errs = append(errs, apierrors.ShapeInvalid("$.spec_version", "spec_version must be a string"))
		}
	} else {
		errs = append(errs, apierrors.ShapeInvalid("$.spec_version", "spec_version is required"))
	}

	meta, metaErrs := decodeMeta(m["meta"])
	errs = append(errs, metaErrs...)
	plan.Meta = meta

	cfg, cfgErrs := decodeConfig(m["config"])
	errs = append(errs, cfgErrs...)
	plan.Config = cfg

	steps, stepErrs := decodeSteps(m["steps"])
	errs = append(errs, stepErrs...)
	plan.Steps = steps

	if len(errs) > 0 {
		// Shape errors still yield a best-effort plan so downstream callers
		// (e.g. lenient-mode demotion) can inspect what did decode, but the
		// caller treats any shape error as blocking in every mode.
		return plan, errs
	}
	return plan, nil
}

func decodeMeta(raw interface{}) (utdl.Meta, []*apierrors.StructuredError) {
	meta := utdl.Meta{}
	var errs []*apierrors.StructuredError

	m, ok := raw.(map[string]interface{})
	if !ok {
		errs = append(errs, apierrors.ShapeInvalid("$.meta", "meta is required and must be an object"))
		meta = utdl.NewMeta("", "", nil)
		return meta, errs
	}

	if name, ok := m["name"].(string); ok && strings.TrimSpace(name) != "" {
		meta.Name = name
	} else {
		errs = append(errs, apierrors.ShapeInvalid("$.meta.name", "meta.name must be a non-empty string"))
	}

	if id, ok := m["id"].(string); ok && id != "" {
		meta.ID = id
	} else {
		meta.ID = newID()
	}

	if desc, ok := m["description"].(string); ok {
		meta.Description = desc
	}

	if tags, ok := m["tags"].([]interface{}); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				meta.Tags = append(meta.Tags, s)
			}
		}
	}

	meta.CreatedAt = nowUTC()
	return meta, errs
}

func decodeConfig(raw interface{}) (utdl.Config, []*apierrors.StructuredError) {
	cfg := utdl.Config{TimeoutMs: 5000}
	var errs []*apierrors.StructuredError

	m, ok := raw.(map[string]interface{})
	if !ok {
		errs = append(errs, apierrors.ShapeInvalid("$.config", "config is required and must be an object"))
		return cfg, errs
	}

	if baseURL, ok := m["base_url"].(string); ok && baseURL != "" {
		cfg.BaseURL = baseURL
	} else {
		errs = append(errs, apierrors.ShapeInvalid("$.config.base_url", "config.base_url must be a non-empty string"))
	}

	if t, ok := m["timeout_ms"]; ok {
		if n, ok := t.(float64); ok {
			if n < 100 {
				errs = append(errs, apierrors.ShapeInvalid("$.config.timeout_ms", "config.timeout_ms must be >= 100"))
			} else {
				cfg.TimeoutMs = int(n)
			}
		} else {
			errs = append(errs, apierrors.ShapeInvalid("$.config.timeout_ms", "config.timeout_ms must be a number"))
		}
	}

	if headers, ok := m["global_headers"].(map[string]interface{}); ok {
		cfg.GlobalHeaders = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				cfg.GlobalHeaders[k] = s
			}
		}
	}

	if vars, ok := m["variables"].(map[string]interface{}); ok {
		cfg.Variables = utdl.MapFromAny(vars)
	}

	return cfg, errs
}

func decodeSteps(raw interface{}) ([]utdl.Step, []*apierrors.StructuredError) {
	var errs []*apierrors.StructuredError
	arr, ok := raw.([]interface{})
	if !ok {
		if raw == nil {
			return nil, nil
		}
		errs = append(errs, apierrors.ShapeInvalid("$.steps", "steps must be an array"))
		return nil, errs
	}

	steps := make([]utdl.Step, 0, len(arr))
	for i, item := range arr {
		pointer := fmt.Sprintf("$.steps[%s]", strconv.Itoa(i))
		m, ok := item.(map[string]interface{})
		if !ok {
			errs = append(errs, apierrors.ShapeInvalid(pointer, "step must be an object"))
			continue
		}
		step, stepErrs := decodeStep(m, pointer)
		errs = append(errs, stepErrs...)
		steps = append(steps, step)
	}
	return steps, errs
}

func decodeStep(m map[string]interface{}, pointer string) (utdl.Step, []*apierrors.StructuredError) {
	var errs []*apierrors.StructuredError
	step := utdl.Step{}

	if id, ok := m["id"].(string); ok && utdl.NormalizeStepID(id) != "" {
		step.ID = utdl.NormalizeStepID(id)
	} else {
		errs = append(errs, apierrors.ShapeInvalid(pointer+".id", "step id must be a non-empty string"))
	}

	if action, ok := m["action"].(string); ok && action != "" {
		step.Action = action
	} else {
		errs = append(errs, apierrors.ShapeInvalid(pointer+".action", "step action must be a non-empty string"))
	}

	if desc, ok := m["description"].(string); ok {
		step.Description = desc
	}

	if deps, ok := m["depends_on"].([]interface{}); ok {
		for _, d := range deps {
			if s, ok := d.(string); ok {
				step.DependsOn = append(step.DependsOn, s)
			}
		}
	}

	if params, ok := m["params"].(map[string]interface{}); ok {
		step.Params = utdl.MapFromAny(params)
	}

	if assertions, ok := m["assertions"].([]interface{}); ok {
		for i, a := range assertions {
			am, ok := a.(map[string]interface{})
			if !ok {
				errs = append(errs, apierrors.ShapeInvalid(fmt.Sprintf("%s.assertions[%d]", pointer, i), "assertion must be an object"))
				continue
			}
			assertion, aerrs := decodeAssertion(am, fmt.Sprintf("%s.assertions[%d]", pointer, i))
			errs = append(errs, aerrs...)
			step.Assertions = append(step.Assertions, assertion)
		}
	}

	if extract, ok := m["extract"].([]interface{}); ok {
		for i, e := range extract {
			em, ok := e.(map[string]interface{})
			if !ok {
				errs = append(errs, apierrors.ShapeInvalid(fmt.Sprintf("%s.extract[%d]", pointer, i), "extraction must be an object"))
				continue
			}
			extraction, eerrs := decodeExtraction(em, fmt.Sprintf("%s.extract[%d]", pointer, i))
			errs = append(errs, eerrs...)
			step.Extract = append(step.Extract, extraction)
		}
	}

	if rp, ok := m["recovery_policy"].(map[string]interface{}); ok {
		policy := utdl.DefaultRecoveryPolicy()
		if strat, ok := rp["strategy"].(string); ok {
			policy.Strategy = utdl.RecoveryStrategy(strat)
		}
		if ma, ok := rp["max_attempts"].(float64); ok {
			policy.MaxAttempts = int(ma)
		}
		if bo, ok := rp["backoff_ms"].(float64); ok {
			policy.BackoffMs = int(bo)
		}
		if bf, ok := rp["backoff_factor"].(float64); ok {
			policy.BackoffFactor = bf
		}
		policy = policy.Normalize()
		step.RecoveryPolicy = &policy
	}

	return step, errs
}

func decodeAssertion(m map[string]interface{}, pointer string) (utdl.Assertion, []*apierrors.StructuredError) {
	var errs []*apierrors.StructuredError
	a := utdl.Assertion{}
	if t, ok := m["type"].(string); ok {
		a.Type = utdl.AssertionType(t)
	} else {
		errs = append(errs, apierrors.ShapeInvalid(pointer+".type", "assertion type must be a string"))
	}
	if op, ok := m["operator"].(string); ok {
		a.Operator = utdl.AssertionOperator(op)
	} else {
		a.Operator = utdl.OpEq
	}
	if v, ok := m["value"]; ok {
		a.Value = utdl.FromAny(v)
	}
	if path, ok := m["path"].(string); ok {
		a.Path = path
	}
	return a, errs
}

func decodeExtraction(m map[string]interface{}, pointer string) (utdl.Extraction, []*apierrors.StructuredError) {
	var errs []*apierrors.StructuredError
	e := utdl.Extraction{}
	if s, ok := m["source"].(string); ok {
		e.Source = utdl.ExtractionSource(s)
	} else {
		errs = append(errs, apierrors.ShapeInvalid(pointer+".source", "extraction source must be a string"))
	}
	if path, ok := m["path"].(string); ok {
		e.Path = path
	} else {
		errs = append(errs, apierrors.ShapeInvalid(pointer+".path", "extraction path must be a string"))
	}
	if target, ok := m["target"].(string); ok {
		e.Target = target
	} else {
		errs = append(errs, apierrors.ShapeInvalid(pointer+".target", "extraction target must be a string"))
	}
	return e, errs
}
