// Package openapi ingests OpenAPI v2/v3 documents from a file, URL, or
// already-decoded mapping, flattens them into a normalized endpoint list,
// and renders that list as plain-text requirement prose for the Generator.
package openapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aqa-systems/brain/pkg/apierrors"
	"gopkg.in/yaml.v3"
)

// Parameter describes one endpoint parameter.
type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

// RequestBody describes an endpoint's JSON request body, if any.
type RequestBody struct {
	Required bool                   `json:"required"`
	Schema   map[string]interface{} `json:"schema,omitempty"`
}

// Endpoint is one flattened path+method operation.
type Endpoint struct {
	Path        string                       `json:"path"`
	Method      string                       `json:"method"`
	Summary     string                       `json:"summary"`
	Description string                       `json:"description"`
	Parameters  []Parameter                  `json:"parameters"`
	RequestBody *RequestBody                 `json:"request_body,omitempty"`
	Responses   map[string]map[string]string `json:"responses"`
}

// ValidationResult reports structural validation findings. There is no
// ecosystem OpenAPI-schema validator in this dependency stack (see
// DESIGN.md), so validation here is a hand-rolled structural check: presence
// of openapi/swagger + info + paths, not full JSON-Schema $ref resolution.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Spec is the flattened, normalized view of an OpenAPI document.
type Spec struct {
	BaseURL    string            `json:"base_url"`
	Title      string            `json:"title"`
	Endpoints  []Endpoint        `json:"endpoints"`
	Validation *ValidationResult `json:"validation,omitempty"`
}

var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// ValidateDocument runs the structural checks described above.
func ValidateDocument(doc map[string]interface{}) ValidationResult {
	res := ValidationResult{IsValid: true}

	if len(doc) == 0 {
		res.IsValid = false
		res.Errors = append(res.Errors, "empty specification")
		return res
	}

	_, hasOpenAPI := doc["openapi"]
	_, hasSwagger := doc["swagger"]
	if !hasOpenAPI && !hasSwagger {
		res.IsValid = false
		res.Errors = append(res.Errors, "missing 'openapi' (v3) or 'swagger' (v2) field")
		return res
	}

	if _, ok := doc["info"]; !ok {
		res.Warnings = append(res.Warnings, "missing 'info' field (recommended)")
	}

	paths, _ := doc["paths"].(map[string]interface{})
	if len(paths) == 0 {
		res.Warnings = append(res.Warnings, "no endpoints defined in 'paths'")
	}

	return res
}

// ParseOptions controls ingestion behaviour.
type ParseOptions struct {
	Validate bool
	Strict   bool
	// HTTPClient is used for http(s):// sources; defaults to a 30s-timeout client.
	HTTPClient *http.Client
}

// DefaultParseOptions mirrors the original implementation's defaults
// (validate_spec=True, strict=False).
func DefaultParseOptions() ParseOptions {
	return ParseOptions{Validate: true, Strict: false, HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// Parse ingests source, which may be a local file path, an http(s):// URL,
// or an already-decoded map[string]interface{}.
func Parse(source interface{}, opts ParseOptions) (*Spec, error) {
	doc, err := loadDocument(source, opts)
	if err != nil {
		return nil, err
	}

	var validation *ValidationResult
	if opts.Validate {
		v := ValidateDocument(doc)
		validation = &v
		if !v.IsValid && opts.Strict {
			return nil, apierrors.New(apierrors.CodeShapeInvalid,
				fmt.Sprintf("invalid OpenAPI specification: %s", strings.Join(v.Errors, ", ")), 400)
		}
	}

	spec := normalize(doc)
	spec.Validation = validation
	return spec, nil
}

func loadDocument(source interface{}, opts ParseOptions) (map[string]interface{}, error) {
	if m, ok := source.(map[string]interface{}); ok {
		return m, nil
	}

	path, ok := source.(string)
	if !ok {
		return nil, apierrors.InvalidConfig("source", "source must be a file path, URL, or decoded map")
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		resp, err := client.Get(path)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeHTTPRequestFailed, "fetch OpenAPI document", 502, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeHTTPRequestFailed, "read OpenAPI document body", 502, err)
		}
		return decodeBytes(body, path)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInvalidConfig, "read OpenAPI document file", 400, err)
	}
	return decodeBytes(body, path)
}

func decodeBytes(body []byte, hint string) (map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(hint))
	var doc map[string]interface{}
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return nil, apierrors.Wrap(apierrors.CodeShapeInvalid, "parse YAML OpenAPI document", 400, err)
		}
		return normalizeYAMLMap(doc), nil
	}
	if err := json.Unmarshal(body, &doc); err == nil {
		return doc, nil
	}
	// Content-sniff: some specs are YAML without a recognized extension.
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, apierrors.Wrap(apierrors.CodeShapeInvalid, "parse OpenAPI document as JSON or YAML", 400, err)
	}
	return normalizeYAMLMap(doc), nil
}

// normalizeYAMLMap recursively converts map[interface{}]interface{}/
// map[string]interface{} mixes that gopkg.in/yaml.v3 can produce for nested
// documents into a pure map[string]interface{} tree matching encoding/json's
// shape, so downstream code has one representation to handle.
func normalizeYAMLMap(v interface{}) map[string]interface{} {
	converted, _ := convertYAML(v).(map[string]interface{})
	return converted
}

func convertYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = convertYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = convertYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = convertYAML(val)
		}
		return out
	default:
		return v
	}
}

func normalize(doc map[string]interface{}) *Spec {
	baseURL := ""
	if isV2 := hasString(doc, "swagger"); isV2 {
		baseURL = flattenV2BaseURL(doc)
	} else if servers, ok := doc["servers"].([]interface{}); ok && len(servers) > 0 {
		if first, ok := servers[0].(map[string]interface{}); ok {
			baseURL, _ = first["url"].(string)
		}
	}

	title := "API"
	if info, ok := doc["info"].(map[string]interface{}); ok {
		if t, ok := info["title"].(string); ok && t != "" {
			title = t
		}
	}

	var endpoints []Endpoint
	paths, _ := doc["paths"].(map[string]interface{})
	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, path := range pathKeys {
		methods, _ := paths[path].(map[string]interface{})
		methodKeys := make([]string, 0, len(methods))
		for m := range methods {
			methodKeys = append(methodKeys, m)
		}
		sort.Strings(methodKeys)
		for _, method := range methodKeys {
			if !httpMethods[strings.ToUpper(method)] {
				continue
			}
			details, _ := methods[method].(map[string]interface{})
			endpoints = append(endpoints, Endpoint{
				Path:        path,
				Method:      strings.ToUpper(method),
				Summary:     stringField(details, "summary"),
				Description: stringField(details, "description"),
				Parameters:  extractParameters(details),
				RequestBody: extractRequestBody(details),
				Responses:   extractResponses(details),
			})
		}
	}

	return &Spec{BaseURL: baseURL, Title: title, Endpoints: endpoints}
}

func flattenV2BaseURL(doc map[string]interface{}) string {
	host := stringField(doc, "host")
	if host == "" {
		return ""
	}
	basePath := stringField(doc, "basePath")
	scheme := "https"
	if schemes, ok := doc["schemes"].([]interface{}); ok && len(schemes) > 0 {
		if s, ok := schemes[0].(string); ok {
			scheme = s
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, basePath)
}

func hasString(m map[string]interface{}, key string) bool {
	_, ok := m[key].(string)
	return ok
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func extractParameters(details map[string]interface{}) []Parameter {
	raw, _ := details["parameters"].([]interface{})
	params := make([]Parameter, 0, len(raw))
	for _, p := range raw {
		pm, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		typ := "string"
		if schema, ok := pm["schema"].(map[string]interface{}); ok {
			if t, ok := schema["type"].(string); ok && t != "" {
				typ = t
			}
		}
		required, _ := pm["required"].(bool)
		params = append(params, Parameter{
			Name:     stringField(pm, "name"),
			In:       stringField(pm, "in"),
			Required: required,
			Type:     typ,
		})
	}
	return params
}

func extractRequestBody(details map[string]interface{}) *RequestBody {
	body, ok := details["requestBody"].(map[string]interface{})
	if !ok || len(body) == 0 {
		return nil
	}
	required, _ := body["required"].(bool)
	var schema map[string]interface{}
	if content, ok := body["content"].(map[string]interface{}); ok {
		if jsonContent, ok := content["application/json"].(map[string]interface{}); ok {
			schema, _ = jsonContent["schema"].(map[string]interface{})
		}
	}
	return &RequestBody{Required: required, Schema: schema}
}

func extractResponses(details map[string]interface{}) map[string]map[string]string {
	raw, _ := details["responses"].(map[string]interface{})
	out := make(map[string]map[string]string, len(raw))
	for code, v := range raw {
		rm, _ := v.(map[string]interface{})
		out[code] = map[string]string{"description": stringField(rm, "description")}
	}
	return out
}

// SpecToRequirementText renders a Spec as deterministic plain-text
// requirement prose suitable as Generator input.
func SpecToRequirementText(spec *Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "API: %s\n", spec.Title)
	baseURL := spec.BaseURL
	if baseURL == "" {
		baseURL = "not specified"
	}
	fmt.Fprintf(&b, "Base URL: %s\n\n", baseURL)
	b.WriteString("Endpoints:\n")

	for _, e := range spec.Endpoints {
		fmt.Fprintf(&b, "\n- %s %s\n", e.Method, e.Path)
		if e.Summary != "" {
			fmt.Fprintf(&b, "  Summary: %s\n", e.Summary)
		}
		if len(e.Parameters) > 0 {
			names := make([]string, 0, len(e.Parameters))
			for _, p := range e.Parameters {
				names = append(names, p.Name)
			}
			fmt.Fprintf(&b, "  Parameters: %s\n", strings.Join(names, ", "))
		}
		if e.RequestBody != nil {
			b.WriteString("  Accepts a JSON body\n")
		}
		if len(e.Responses) > 0 {
			codes := make([]string, 0, len(e.Responses))
			for c := range e.Responses {
				codes = append(codes, c)
			}
			sort.Strings(codes)
			fmt.Fprintf(&b, "  Response codes: %s\n", strings.Join(codes, ", "))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
