package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Cache stores node results keyed by the deterministic execution key. A
// miss is (nil, false, nil); cache errors are reported so callers can
// degrade to executing the node.
type Cache interface {
	Get(ctx context.Context, key string) (*sdk.NodeExecutionResult, bool, error)
	Put(ctx context.Context, key string, result *sdk.NodeExecutionResult, ttl time.Duration) error
}

// CacheKey derives the node cache key: a SHA-256 over the topology hash,
// the node id, and the canonical JSON of the assembled input. Go's map
// marshaling sorts keys, so equal inputs produce equal keys regardless of
// insertion order.
func CacheKey(topologyHash, nodeID string, input map[string]interface{}) (string, error) {
	canonical, err := json.Marshal(input)
	if err != nil {
		return "", sdk.WrapError(sdk.ErrInternal, err, "canonicalize cache input for node %s", nodeID)
	}
	h := sha256.New()
	h.Write([]byte(topologyHash))
	h.Write([]byte{'|'})
	h.Write([]byte(nodeID))
	h.Write([]byte{'|'})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type memoryEntry struct {
	result    *sdk.NodeExecutionResult
	expiresAt time.Time
}

// MemoryCache is the in-process cache used in development mode and tests.
// Production deployments install the Redis-backed cache from common/cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*sdk.NodeExecutionResult, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.result, true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, result *sdk.NodeExecutionResult, ttl time.Duration) error {
	entry := memoryEntry{result: result}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}
