package generator

import (
	"context"
	"testing"

	"github.com/aqa-systems/brain/internal/llm"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	entries map[CacheKey]utdl.Plan
	gets    int
	stores  int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[CacheKey]utdl.Plan{}} }

func (c *fakeCache) Get(ctx context.Context, key CacheKey) (utdl.Plan, bool, error) {
	c.gets++
	p, ok := c.entries[key]
	return p, ok, nil
}

func (c *fakeCache) Store(ctx context.Context, key CacheKey, plan utdl.Plan) error {
	c.stores++
	c.entries[key] = plan
	return nil
}

func TestGenerate_HappyPathFromMockProvider(t *testing.T) {
	provider := llm.NewMock(0)
	v := validator.New(validator.ModeDefault, nil)
	cache := newFakeCache()
	g := New(provider, v, cache, "mock-v1")

	plan, meta, err := g.Generate(context.Background(), "test the login flow", "http://api.example.com", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "mock", meta.Provider)
	assert.False(t, meta.Cached)
	require.NotEmpty(t, plan.Steps)
	assert.Equal(t, 1, cache.stores)
}

func TestGenerate_CacheHitSkipsProvider(t *testing.T) {
	provider := llm.NewMock(0)
	v := validator.New(validator.ModeDefault, nil)
	cache := newFakeCache()
	g := New(provider, v, cache, "mock-v1")

	_, _, err := g.Generate(context.Background(), "test the login flow", "http://api.example.com", DefaultOptions())
	require.NoError(t, err)

	before := provider.CallCount()
	plan, meta, err := g.Generate(context.Background(), "test the login flow", "http://api.example.com", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, meta.Cached)
	require.NotEmpty(t, plan.Steps)
	assert.Equal(t, before, provider.CallCount(), "cache hit must not call the provider again")
}

func TestGenerate_SkipCacheForcesRegeneration(t *testing.T) {
	provider := llm.NewMock(0)
	v := validator.New(validator.ModeDefault, nil)
	cache := newFakeCache()
	g := New(provider, v, cache, "mock-v1")

	_, _, err := g.Generate(context.Background(), "health check", "http://api.example.com", DefaultOptions())
	require.NoError(t, err)

	before := provider.CallCount()
	opts := DefaultOptions()
	opts.SkipCache = true
	_, meta, err := g.Generate(context.Background(), "health check", "http://api.example.com", opts)
	require.NoError(t, err)
	assert.False(t, meta.Cached)
	assert.Greater(t, provider.CallCount(), before)
}

type brokenProvider struct{}

func (brokenProvider) Name() string    { return "broken" }
func (brokenProvider) Available() bool { return true }
func (brokenProvider) Generate(ctx context.Context, prompt string, opts llm.Options) (llm.Response, error) {
	return llm.Response{Content: "not json at all, no braces here"}, nil
}

func TestGenerate_ExhaustsAttemptsOnUnparsableOutput(t *testing.T) {
	v := validator.New(validator.ModeDefault, nil)
	g := New(brokenProvider{}, v, nil, "broken-v1")

	opts := DefaultOptions()
	opts.MaxCorrectionAttempts = 2
	_, _, err := g.Generate(context.Background(), "do anything", "http://api.example.com", opts)
	require.Error(t, err)
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	content := "Here is the plan:\n```json\n{\"a\": 1}\n```\nHope that helps."
	assert.Equal(t, `{"a": 1}`, ExtractJSON(content))
}

func TestExtractJSON_BalancedBraceScan(t *testing.T) {
	content := `Sure, here it is: {"a": {"b": 1}} -- done`
	assert.Equal(t, `{"a": {"b": 1}}`, ExtractJSON(content))
}

func TestExtractJSON_NoJSONReturnsTrimmedInput(t *testing.T) {
	assert.Equal(t, "no json here", ExtractJSON("  no json here  "))
}
