package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// templates maps a prompt keyword to a canned UTDL-shaped plan document.
// Keys are checked in map order is not guaranteed in Go, so Mock iterates
// templateOrder instead to keep first-match behaviour deterministic.
var templates = map[string]map[string]interface{}{
	"login": {
		"meta":   map[string]interface{}{"name": "Login Test", "version": "1.0"},
		"config": map[string]interface{}{"base_url": "${BASE_URL}"},
		"steps": []interface{}{
			map[string]interface{}{
				"id":          "login",
				"action":      "http_request",
				"description": "authenticates user",
				"params": map[string]interface{}{
					"method": "POST",
					"path":   "/auth/login",
					"body":   map[string]interface{}{"email": "${USER_EMAIL}", "password": "${USER_PASSWORD}"},
				},
				"assertions": []interface{}{
					map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(200)},
				},
				"extract": []interface{}{
					map[string]interface{}{"source": "body", "path": "$.token", "target": "auth_token"},
				},
			},
		},
	},
	"crud": {
		"meta":   map[string]interface{}{"name": "CRUD Test", "version": "1.0"},
		"config": map[string]interface{}{"base_url": "${BASE_URL}"},
		"steps": []interface{}{
			map[string]interface{}{
				"id":          "create",
				"action":      "http_request",
				"description": "creates resource",
				"params":      map[string]interface{}{"method": "POST", "path": "/items", "body": map[string]interface{}{"name": "test"}},
				"assertions":  []interface{}{map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(201)}},
				"extract":     []interface{}{map[string]interface{}{"source": "body", "path": "$.id", "target": "item_id"}},
			},
			map[string]interface{}{
				"id":          "read",
				"action":      "http_request",
				"description": "reads resource",
				"depends_on":  []interface{}{"create"},
				"params":      map[string]interface{}{"method": "GET", "path": "/items/${item_id}"},
				"assertions":  []interface{}{map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(200)}},
			},
			map[string]interface{}{
				"id":          "update",
				"action":      "http_request",
				"description": "updates resource",
				"depends_on":  []interface{}{"read"},
				"params":      map[string]interface{}{"method": "PUT", "path": "/items/${item_id}", "body": map[string]interface{}{"name": "updated"}},
				"assertions":  []interface{}{map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(200)}},
			},
			map[string]interface{}{
				"id":          "delete",
				"action":      "http_request",
				"description": "removes resource",
				"depends_on":  []interface{}{"update"},
				"params":      map[string]interface{}{"method": "DELETE", "path": "/items/${item_id}"},
				"assertions":  []interface{}{map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(204)}},
			},
		},
	},
	"health": {
		"meta":   map[string]interface{}{"name": "Health Check", "version": "1.0"},
		"config": map[string]interface{}{"base_url": "${BASE_URL}"},
		"steps": []interface{}{
			map[string]interface{}{
				"id":          "health",
				"action":      "http_request",
				"description": "checks API health",
				"params":      map[string]interface{}{"method": "GET", "path": "/health"},
				"assertions":  []interface{}{map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(200)}},
			},
		},
	},
}

// templateOrder fixes the keyword match priority since Go map iteration
// order is randomized.
var templateOrder = []string{"login", "crud", "health"}

var defaultTemplate = map[string]interface{}{
	"meta":   map[string]interface{}{"name": "Generic API Test", "version": "1.0"},
	"config": map[string]interface{}{"base_url": "${BASE_URL}"},
	"steps": []interface{}{
		map[string]interface{}{
			"id":          "request",
			"action":      "http_request",
			"description": "generic request",
			"params":      map[string]interface{}{"method": "GET", "path": "/"},
			"assertions":  []interface{}{map[string]interface{}{"type": "status_code", "operator": "eq", "value": float64(200)}},
		},
	},
}

// Mock returns deterministic, keyword-templated responses. It never calls
// out to a network and exists for tests, CI, and local development.
type Mock struct {
	mu          sync.Mutex
	LatencyMs   float64
	failOnNext  bool
	callCount   int
	lastPrompt  string
}

// NewMock constructs a Mock provider with the given simulated latency.
func NewMock(latencyMs float64) *Mock {
	return &Mock{LatencyMs: latencyMs}
}

func (m *Mock) Name() string     { return "mock" }
func (m *Mock) Available() bool  { return true }

// CallCount reports how many times Generate has been invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt reports the most recently received prompt.
func (m *Mock) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// FailNext makes the next Generate call return an error, then clears itself.
func (m *Mock) FailNext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnNext = true
}

// Reset clears call tracking, for test isolation between cases.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastPrompt = ""
	m.failOnNext = false
}

func (m *Mock) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	m.mu.Lock()
	m.callCount++
	m.lastPrompt = prompt
	shouldFail := m.failOnNext
	m.failOnNext = false
	latency := m.LatencyMs
	m.mu.Unlock()

	if shouldFail {
		return Response{}, errors.New("mock: simulated failure")
	}

	if latency > 0 {
		select {
		case <-time.After(time.Duration(latency) * time.Millisecond):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	start := time.Now()
	promptLower := strings.ToLower(prompt)

	matched := "default"
	template := defaultTemplate
	for _, keyword := range templateOrder {
		if strings.Contains(promptLower, keyword) {
			template = templates[keyword]
			matched = keyword
			break
		}
	}

	body, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return Response{}, err
	}

	return Response{
		Content:    string(body),
		Model:      "mock-v1",
		Provider:   "mock",
		TokensUsed: 0,
		LatencyMs:  elapsedMs(start) + latency,
		Metadata: map[string]interface{}{
			"template_used":  matched,
			"prompt_length":  len(prompt),
		},
	}, nil
}
