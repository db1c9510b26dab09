// Package generator assembles prompts, drives an llm.Provider, validates
// the result, and runs a bounded self-correction loop until a valid UTDL
// plan is produced or attempts are exhausted.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aqa-systems/brain/internal/adapter"
	"github.com/aqa-systems/brain/internal/llm"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// CacheKey identifies a cacheable generation request. The cache (not the
// generator) owns fingerprint computation so hashing stays in one place.
type CacheKey struct {
	Requirement string
	BaseURL     string
	Provider    string
	Model       string
}

// Cache is the subset of the plan cache the generator depends on.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (utdl.Plan, bool, error)
	Store(ctx context.Context, key CacheKey, plan utdl.Plan) error
}

// Metadata describes how a plan was produced, for callers that want to
// report generation provenance (provider, model, tokens, cache hit).
type Metadata struct {
	Provider  string
	Model     string
	Tokens    int
	Cached    bool
	Attempts  int
	ElapsedMs float64
}

// Options configures a single Generate call.
type Options struct {
	SkipCache             bool
	MaxCorrectionAttempts int
	GenOptions            llm.Options
}

// DefaultOptions mirrors the original implementation's defaults.
func DefaultOptions() Options {
	return Options{MaxCorrectionAttempts: 3, GenOptions: llm.DefaultOptions()}
}

// Generator renders prompts, calls a Provider, validates the response, and
// retries with error-correction prompts up to MaxCorrectionAttempts.
type Generator struct {
	Provider llm.Provider
	Validator *validator.Validator
	Cache    Cache
	Model    string
}

// New constructs a Generator. cache may be nil to disable caching.
func New(provider llm.Provider, v *validator.Validator, cache Cache, model string) *Generator {
	return &Generator{Provider: provider, Validator: v, Cache: cache, Model: model}
}

// Generate produces a validated UTDL plan for requirement against baseURL.
func (g *Generator) Generate(ctx context.Context, requirement, baseURL string, opts Options) (utdl.Plan, Metadata, error) {
	start := time.Now()
	if opts.MaxCorrectionAttempts <= 0 {
		opts.MaxCorrectionAttempts = 3
	}

	key := CacheKey{Requirement: requirement, BaseURL: baseURL, Provider: g.Provider.Name(), Model: g.Model}

	if !opts.SkipCache && g.Cache != nil {
		if plan, ok, err := g.Cache.Get(ctx, key); err == nil && ok {
			return plan, Metadata{Provider: g.Provider.Name(), Model: g.Model, Cached: true, ElapsedMs: elapsedMs(start)}, nil
		}
	}

	systemP := systemPrompt
	userP := userPrompt(requirement, baseURL)

	raw, tokens, err := g.callLLM(ctx, systemP, userP, opts.GenOptions)
	if err != nil {
		return utdl.Plan{}, Metadata{}, err
	}

	var lastResult validator.Result
	for attempt := 0; attempt < opts.MaxCorrectionAttempts; attempt++ {
		result := g.validateRaw(raw)
		if result.OK && result.Plan != nil {
			if g.Cache != nil {
				_ = g.Cache.Store(ctx, key, *result.Plan)
			}
			return *result.Plan, Metadata{
				Provider:  g.Provider.Name(),
				Model:     g.Model,
				Tokens:    tokens,
				Cached:    false,
				Attempts:  attempt + 1,
				ElapsedMs: elapsedMs(start),
			}, nil
		}
		lastResult = result

		if attempt == opts.MaxCorrectionAttempts-1 {
			break
		}

		correction := correctionPrompt(formatDiagnostics(result), raw)
		raw, tokens, err = g.callLLM(ctx, systemP, correction, opts.GenOptions)
		if err != nil {
			return utdl.Plan{}, Metadata{}, apierrors.GenerationExhausted(attempt+1, err)
		}
	}

	return utdl.Plan{}, Metadata{}, apierrors.GenerationExhausted(opts.MaxCorrectionAttempts, fmt.Errorf("%s", formatDiagnostics(lastResult)))
}

// validateRaw runs the LLM's extracted JSON through the Format Adapter
// before validation, since generated output commonly omits spec_version
// or a meta block the same way externally-supplied near-UTDL plans do.
func (g *Generator) validateRaw(raw string) validator.Result {
	var parsed interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		se := apierrors.ShapeInvalid("$", fmt.Sprintf("invalid JSON: %v", err))
		return validator.Result{Errors: []*apierrors.StructuredError{se}, StructuredErrors: []*apierrors.StructuredError{se}}
	}

	m, ok := parsed.(map[string]interface{})
	if !ok {
		return g.Validator.Validate(parsed)
	}

	normalized, err := adapter.Normalize(m)
	if err != nil {
		se, ok := apierrors.As(err)
		if !ok {
			se = apierrors.Internal("plan normalization failed", err)
		}
		return validator.Result{Errors: []*apierrors.StructuredError{se}, StructuredErrors: []*apierrors.StructuredError{se}}
	}

	return g.Validator.Validate(normalized)
}

func (g *Generator) callLLM(ctx context.Context, systemP, userP string, opts llm.Options) (string, int, error) {
	opts.SystemPrompt = systemP
	resp, err := g.Provider.Generate(ctx, userP, opts)
	if err != nil {
		return "", 0, err
	}
	return ExtractJSON(resp.Content), resp.TokensUsed, nil
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON pulls a JSON document out of free-form LLM output: first a
// fenced ```json code block, else a balanced-brace scan from the first
// `{`, else the trimmed input verbatim.
func ExtractJSON(content string) string {
	if m := fencedJSONPattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(content, '{')
	if start == -1 {
		return strings.TrimSpace(content)
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return strings.TrimSpace(content)
}

func formatDiagnostics(r validator.Result) string {
	if len(r.Errors) == 0 {
		return "unknown validation failure"
	}
	var b strings.Builder
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "%s: %s", e.Pointer, e.Message)
		if e.Suggestion != "" {
			fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestion)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
