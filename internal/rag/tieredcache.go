package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/metrics"
	"github.com/onboard-agent/backend/pkg/logger"
)

// Per-tier TTLs. Embeddings are assumed stable for identical text+model,
// so they live the longest; per-user context is the most volatile.
const (
	TTLEmbeddings       = 24 * time.Hour
	TTLSearchResults    = time.Hour
	TTLUserContext      = 30 * time.Minute
	TTLDocumentMetadata = 2 * time.Hour
)

const (
	tierEmbedding   = "embedding"
	tierSearch      = "search"
	tierUserContext = "user_context"
	tierDocMeta     = "doc_metadata"
)

// SearchParams identifies a cached search result set. The filter is
// non-scalar and enters the key as a short digest.
type SearchParams struct {
	K              int               `json:"k"`
	ScoreThreshold float32           `json:"score_threshold"`
	Filter         map[string]string `json:"filter,omitempty"`
}

// TieredCache is a typed cache-aside layer over the shared store. Caching
// is strictly an optimization: every store error is logged, counted, and
// degraded to a miss (get) or a no-op (set), never propagated.
type TieredCache struct {
	store Store
}

func NewTieredCache(store Store) *TieredCache {
	return &TieredCache{store: store}
}

func (c *TieredCache) GetEmbedding(ctx context.Context, text, model string) ([]float32, bool) {
	key := BuildKey(tierEmbedding, 0, []interface{}{text}, map[string]interface{}{"model": model})
	var vector []float32
	if !c.get(ctx, tierEmbedding, key, &vector) {
		return nil, false
	}
	return vector, true
}

func (c *TieredCache) SetEmbedding(ctx context.Context, text, model string, vector []float32) {
	key := BuildKey(tierEmbedding, 0, []interface{}{text}, map[string]interface{}{"model": model})
	c.set(ctx, tierEmbedding, key, vector, TTLEmbeddings)
}

func (c *TieredCache) GetSearchResults(ctx context.Context, query string, userID int64, params SearchParams) ([]Segment, bool) {
	key := searchKey(query, userID, params)
	var segments []Segment
	if !c.get(ctx, tierSearch, key, &segments) {
		return nil, false
	}
	return segments, true
}

func (c *TieredCache) SetSearchResults(ctx context.Context, query string, userID int64, params SearchParams, segments []Segment) {
	c.set(ctx, tierSearch, searchKey(query, userID, params), segments, TTLSearchResults)
}

func (c *TieredCache) GetUserContext(ctx context.Context, userID int64) (map[string]string, bool) {
	key := BuildKey(tierUserContext, userID, nil, nil)
	var snapshot map[string]string
	if !c.get(ctx, tierUserContext, key, &snapshot) {
		return nil, false
	}
	return snapshot, true
}

func (c *TieredCache) SetUserContext(ctx context.Context, userID int64, snapshot map[string]string) {
	key := BuildKey(tierUserContext, userID, nil, nil)
	c.set(ctx, tierUserContext, key, snapshot, TTLUserContext)
}

func (c *TieredCache) GetDocumentMetadata(ctx context.Context, documentID string) (map[string]string, bool) {
	key := BuildKey(tierDocMeta, 0, []interface{}{documentID}, nil)
	var meta map[string]string
	if !c.get(ctx, tierDocMeta, key, &meta) {
		return nil, false
	}
	return meta, true
}

func (c *TieredCache) SetDocumentMetadata(ctx context.Context, documentID string, meta map[string]string) {
	key := BuildKey(tierDocMeta, 0, []interface{}{documentID}, nil)
	c.set(ctx, tierDocMeta, key, meta, TTLDocumentMetadata)
}

// InvalidateUser drops every cache entry keyed to the user, across tiers.
// The id is either the final key segment (user_context) or followed by
// another ":"-delimited segment (search); a bare "*user:7*" would also
// sweep users 70..79.
func (c *TieredCache) InvalidateUser(ctx context.Context, userID int64) int {
	removed := c.deletePattern(ctx, fmt.Sprintf("*user:%d:*", userID))
	removed += c.deletePattern(ctx, fmt.Sprintf("*user:%d", userID))
	return removed
}

// InvalidateSearch drops search-result entries. An empty pattern clears
// the whole tier; anything else is forced under the search namespace so
// admin input cannot touch other key families.
func (c *TieredCache) InvalidateSearch(ctx context.Context, pattern string) int {
	prefix := tierSearch + ":"
	switch {
	case pattern == "":
		pattern = prefix + "*"
	case !strings.HasPrefix(pattern, prefix):
		pattern = prefix + pattern
	}
	return c.deletePattern(ctx, pattern)
}

// InvalidateDocument drops cached metadata for a single document.
func (c *TieredCache) InvalidateDocument(ctx context.Context, documentID string) int {
	return c.deletePattern(ctx, fmt.Sprintf("%s:%s*", tierDocMeta, documentID))
}

type CacheStats struct {
	KeyCounts map[string]int `json:"key_counts"`
}

func (c *TieredCache) Stats(ctx context.Context) CacheStats {
	stats := CacheStats{KeyCounts: make(map[string]int)}
	for _, tier := range []string{tierEmbedding, tierSearch, tierUserContext, tierDocMeta} {
		keys, err := c.store.Keys(ctx, tier+":*")
		if err != nil {
			logger.Warn("Cache stats scan failed", zap.String("tier", tier), zap.Error(err))
			continue
		}
		stats.KeyCounts[tier] = len(keys)
	}
	return stats
}

func searchKey(query string, userID int64, params SearchParams) string {
	named := map[string]interface{}{
		"k":               params.K,
		"score_threshold": params.ScoreThreshold,
	}
	if len(params.Filter) > 0 {
		named["filter"] = params.Filter
	}
	return BuildKey(tierSearch, userID, []interface{}{query}, named)
}

func (c *TieredCache) get(ctx context.Context, tier, key string, dest interface{}) bool {
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(tier).Inc()
		logger.Warn("Cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	if !found {
		metrics.CacheMisses.WithLabelValues(tier).Inc()
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		metrics.CacheErrors.WithLabelValues(tier).Inc()
		logger.Warn("Cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	metrics.CacheHits.WithLabelValues(tier).Inc()
	return true
}

func (c *TieredCache) set(ctx context.Context, tier, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(tier).Inc()
		logger.Warn("Cache marshal failed, skipping set", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetEx(ctx, key, data, ttl); err != nil {
		metrics.CacheErrors.WithLabelValues(tier).Inc()
		logger.Warn("Cache set failed, skipping", zap.String("key", key), zap.Error(err))
	}
}

func (c *TieredCache) deletePattern(ctx context.Context, pattern string) int {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		logger.Warn("Cache invalidation scan failed", zap.String("pattern", pattern), zap.Error(err))
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	deleted, err := c.store.Del(ctx, keys...)
	if err != nil {
		logger.Warn("Cache invalidation delete failed", zap.String("pattern", pattern), zap.Error(err))
		return 0
	}
	logger.Info("Cache invalidated", zap.String("pattern", pattern), zap.Int64("deleted", deleted))
	return int(deleted)
}
