package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ResultCache adapts a byte cache to the node executor's result cache.
type ResultCache struct {
	backend Cache
}

// NewResultCache wraps a byte cache for node results
func NewResultCache(backend Cache) *ResultCache {
	return &ResultCache{backend: backend}
}

func (c *ResultCache) Get(ctx context.Context, key string) (*sdk.NodeExecutionResult, bool, error) {
	data, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var result sdk.NodeExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, true, nil
}

func (c *ResultCache) Put(ctx context.Context, key string, result *sdk.NodeExecutionResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.backend.Set(ctx, key, data, ttl)
}
