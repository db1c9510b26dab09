package plancache

import (
	"context"

	"github.com/aqa-systems/brain/internal/generator"
	"github.com/aqa-systems/brain/internal/utdl"
)

// GeneratorAdapter implements generator.Cache by delegating to a Cache's
// unpacked-parameter API. It exists so plancache can depend on generator
// without generator needing any knowledge of plancache.
type GeneratorAdapter struct {
	cache *Cache
}

// NewGeneratorAdapter wraps cache for use as a generator.Cache.
func NewGeneratorAdapter(cache *Cache) *GeneratorAdapter {
	return &GeneratorAdapter{cache: cache}
}

// Get implements generator.Cache.
func (a *GeneratorAdapter) Get(ctx context.Context, key generator.CacheKey) (utdl.Plan, bool, error) {
	return a.cache.Get(ctx, key.Requirement, key.BaseURL, key.Provider, key.Model)
}

// Store implements generator.Cache.
func (a *GeneratorAdapter) Store(ctx context.Context, key generator.CacheKey, plan utdl.Plan) error {
	_, err := a.cache.Store(ctx, key.Requirement, key.BaseURL, key.Provider, key.Model, plan)
	return err
}
