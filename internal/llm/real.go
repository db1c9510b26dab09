package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultModels mirrors the original implementation's per-backend default
// model selection.
var defaultModels = map[string]string{
	"openai":    "gpt-4o",
	"xai":       "grok-2-latest",
	"anthropic": "claude-3-5-sonnet-20241022",
}

var backendBaseURLs = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"xai":       "https://api.x.ai/v1",
	"anthropic": "https://api.anthropic.com/v1",
}

var preferredOrder = []string{"openai", "xai", "anthropic"}

type backendClient struct {
	apiKey  string
	baseURL string
	model   string
}

// completer abstracts the wire call to a vendor chat-completions endpoint.
// Real never imports a vendor SDK; this keeps the fallback logic testable
// without network access by substituting a fake completer.
type completer interface {
	complete(ctx context.Context, backend string, client backendClient, prompt string, opts Options) (content string, tokensUsed int, err error)
}

// Real calls configured vendor backends in fallback order, pacing retries
// with a token-bucket limiter so a flaky backend cannot be hammered.
type Real struct {
	mu                sync.RWMutex
	clients           map[string]backendClient
	preferred         string
	enableFallback    bool
	lastProviderUsed  string
	limiter           *rate.Limiter
	backend           completer
	httpClient        *http.Client
}

// RealOption configures a Real provider at construction time.
type RealOption func(*Real)

// WithPreferredProvider moves the named backend to the front of the
// fallback order, if it is configured.
func WithPreferredProvider(name string) RealOption {
	return func(r *Real) { r.preferred = name }
}

// WithFallbackDisabled restricts Real to only the preferred/first backend.
func WithFallbackDisabled() RealOption {
	return func(r *Real) { r.enableFallback = false }
}

// WithRateLimit overrides the default retry pacing (2 req/s, burst 2).
func WithRateLimit(perSecond float64, burst int) RealOption {
	return func(r *Real) { r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// withCompleter is test-only: it substitutes the HTTP call with a fake.
func withCompleter(c completer) RealOption {
	return func(r *Real) { r.backend = c }
}

// NewReal builds a Real provider, gating each backend on its API-key
// environment variable (OPENAI_API_KEY, XAI_API_KEY, ANTHROPIC_API_KEY).
func NewReal(opts ...RealOption) *Real {
	r := &Real{
		clients:        make(map[string]backendClient),
		enableFallback: true,
		limiter:        rate.NewLimiter(rate.Limit(2), 2),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	r.backend = &httpCompleter{client: r.httpClient}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		r.clients["openai"] = backendClient{apiKey: key, baseURL: backendBaseURLs["openai"], model: defaultModels["openai"]}
	}
	if key := os.Getenv("XAI_API_KEY"); key != "" {
		r.clients["xai"] = backendClient{apiKey: key, baseURL: backendBaseURLs["xai"], model: defaultModels["xai"]}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		r.clients["anthropic"] = backendClient{apiKey: key, baseURL: backendBaseURLs["anthropic"], model: defaultModels["anthropic"]}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Real) Name() string { return "real" }

func (r *Real) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) > 0
}

// LastProviderUsed reports which backend served the most recent successful
// Generate call.
func (r *Real) LastProviderUsed() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastProviderUsed
}

// AvailableProviders lists backends with a configured API key.
func (r *Real) AvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for _, name := range preferredOrder {
		if _, ok := r.clients[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

func (r *Real) order() []string {
	order := append([]string{}, preferredOrder...)
	if r.preferred != "" {
		for i, name := range order {
			if name == r.preferred {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
		order = append([]string{r.preferred}, order...)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(order))
	for _, name := range order {
		if _, ok := r.clients[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

func (r *Real) Generate(ctx context.Context, prompt string, opts Options) (Response, error) {
	if !r.Available() {
		return Response{}, fmt.Errorf("llm: no provider configured; set OPENAI_API_KEY, XAI_API_KEY, or ANTHROPIC_API_KEY")
	}

	order := r.order()
	if !r.enableFallback && len(order) > 1 {
		order = order[:1]
	}

	var attempts []*Error
	for _, name := range order {
		if err := r.limiter.Wait(ctx); err != nil {
			return Response{}, err
		}

		resp, err := r.callBackend(ctx, name, prompt, opts)
		if err == nil {
			r.mu.Lock()
			r.lastProviderUsed = name
			r.mu.Unlock()
			return resp, nil
		}
		attempts = append(attempts, &Error{Provider: name, Err: err})
		if !r.enableFallback {
			break
		}
	}

	return Response{}, &AggregateError{Attempts: attempts}
}

func (r *Real) callBackend(ctx context.Context, name, prompt string, opts Options) (Response, error) {
	r.mu.RLock()
	client := r.clients[name]
	r.mu.RUnlock()

	start := time.Now()
	content, tokensUsed, err := r.backend.complete(ctx, name, client, prompt, opts)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Content:    content,
		Model:      client.model,
		Provider:   name,
		TokensUsed: tokensUsed,
		LatencyMs:  elapsedMs(start),
	}, nil
}

// httpCompleter calls OpenAI-compatible /chat/completions endpoints (used
// by both OpenAI and xAI) and Anthropic's /v1/messages endpoint, over
// plain net/http -- no vendor SDK dependency.
type httpCompleter struct {
	client *http.Client
}

func (h *httpCompleter) complete(ctx context.Context, backend string, client backendClient, prompt string, opts Options) (string, int, error) {
	if backend == "anthropic" {
		return h.completeAnthropic(ctx, client, prompt, opts)
	}
	return h.completeOpenAICompatible(ctx, client, prompt, opts)
}

func (h *httpCompleter) completeOpenAICompatible(ctx context.Context, client backendClient, prompt string, opts Options) (string, int, error) {
	messages := []map[string]string{}
	if opts.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": opts.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	reqBody, err := json.Marshal(map[string]interface{}{
		"model":       client.model,
		"messages":    messages,
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	})
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+client.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("llm backend returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, err
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("llm backend returned no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

func (h *httpCompleter) completeAnthropic(ctx context.Context, client backendClient, prompt string, opts Options) (string, int, error) {
	payload := map[string]interface{}{
		"model":      client.model,
		"max_tokens": opts.MaxTokens,
		"messages":   []map[string]string{{"role": "user", "content": prompt}},
	}
	if opts.SystemPrompt != "" {
		payload["system"] = opts.SystemPrompt
	}
	if opts.Temperature > 0 {
		payload["temperature"] = opts.Temperature
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", client.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("llm backend returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, err
	}
	if len(parsed.Content) == 0 {
		return "", 0, fmt.Errorf("llm backend returned no content")
	}
	return parsed.Content[0].Text, parsed.Usage.InputTokens + parsed.Usage.OutputTokens, nil
}
