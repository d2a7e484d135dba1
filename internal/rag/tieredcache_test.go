package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieredCacheEmbeddingRoundTrip(t *testing.T) {
	cache := NewTieredCache(newFakeStore())
	ctx := context.Background()

	_, ok := cache.GetEmbedding(ctx, "hello", "text-embedding-3-small")
	require.False(t, ok)

	cache.SetEmbedding(ctx, "hello", "text-embedding-3-small", []float32{0.5, 0.25})

	vector, ok := cache.GetEmbedding(ctx, "hello", "text-embedding-3-small")
	require.True(t, ok)
	assert.Equal(t, []float32{0.5, 0.25}, vector)

	_, ok = cache.GetEmbedding(ctx, "hello", "other-model")
	assert.False(t, ok, "model is part of the key")
}

func TestTieredCacheSearchResultsKeyedByParams(t *testing.T) {
	cache := NewTieredCache(newFakeStore())
	ctx := context.Background()
	params := SearchParams{K: 10, ScoreThreshold: 0.7}
	segments := []Segment{segment("onboarding guide", 0.9)}

	cache.SetSearchResults(ctx, "where is the office", 7, params, segments)

	got, ok := cache.GetSearchResults(ctx, "where is the office", 7, params)
	require.True(t, ok)
	assert.Equal(t, segments, got)

	_, ok = cache.GetSearchResults(ctx, "where is the office", 8, params)
	assert.False(t, ok, "user is part of the key")

	_, ok = cache.GetSearchResults(ctx, "where is the office", 7, SearchParams{K: 3, ScoreThreshold: 0.5})
	assert.False(t, ok, "params are part of the key")
}

func TestTieredCacheStoreErrorIsAMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	cache := NewTieredCache(store)

	_, ok := cache.GetUserContext(context.Background(), 7)
	assert.False(t, ok)
}

func TestTieredCacheSetErrorIsSwallowed(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("connection refused")
	cache := NewTieredCache(store)

	// Must not panic or propagate.
	cache.SetUserContext(context.Background(), 7, map[string]string{"department": "finance"})
}

func TestTieredCacheCorruptEntryIsAMiss(t *testing.T) {
	store := newFakeStore()
	cache := NewTieredCache(store)
	ctx := context.Background()

	key := BuildKey("user_context", 7, nil, nil)
	require.NoError(t, store.SetEx(ctx, key, []byte("{not json"), TTLUserContext))

	_, ok := cache.GetUserContext(ctx, 7)
	assert.False(t, ok)
}

func TestTieredCacheInvalidateUserDropsOnlyUserKeys(t *testing.T) {
	store := newFakeStore()
	cache := NewTieredCache(store)
	ctx := context.Background()

	cache.SetUserContext(ctx, 7, map[string]string{"department": "finance"})
	cache.SetSearchResults(ctx, "q", 7, SearchParams{K: 10, ScoreThreshold: 0.7}, []Segment{segment("a", 0.9)})
	cache.SetSearchResults(ctx, "q", 8, SearchParams{K: 10, ScoreThreshold: 0.7}, []Segment{segment("b", 0.9)})
	cache.SetEmbedding(ctx, "q", "model", []float32{0.1})

	removed := cache.InvalidateUser(ctx, 7)
	assert.Equal(t, 2, removed)

	_, ok := cache.GetUserContext(ctx, 7)
	assert.False(t, ok)
	_, ok = cache.GetSearchResults(ctx, "q", 8, SearchParams{K: 10, ScoreThreshold: 0.7})
	assert.True(t, ok, "other users keep their entries")
	_, ok = cache.GetEmbedding(ctx, "q", "model")
	assert.True(t, ok, "shared embedding entries survive")
}

func TestTieredCacheInvalidateUserSparesPrefixSharingIDs(t *testing.T) {
	store := newFakeStore()
	cache := NewTieredCache(store)
	ctx := context.Background()
	params := SearchParams{K: 10, ScoreThreshold: 0.7}

	cache.SetUserContext(ctx, 7, map[string]string{"department": "finance"})
	cache.SetSearchResults(ctx, "q", 7, params, []Segment{segment("a", 0.9)})
	cache.SetUserContext(ctx, 70, map[string]string{"department": "hr"})
	cache.SetSearchResults(ctx, "q", 70, params, []Segment{segment("b", 0.9)})

	removed := cache.InvalidateUser(ctx, 7)
	assert.Equal(t, 2, removed)

	_, ok := cache.GetUserContext(ctx, 70)
	assert.True(t, ok, "id 70 is not id 7")
	_, ok = cache.GetSearchResults(ctx, "q", 70, params)
	assert.True(t, ok, "id 70 search entries survive")
}

func TestTieredCacheInvalidateSearchDefaultClearsTier(t *testing.T) {
	store := newFakeStore()
	cache := NewTieredCache(store)
	ctx := context.Background()

	cache.SetSearchResults(ctx, "q1", 7, SearchParams{K: 10, ScoreThreshold: 0.7}, []Segment{segment("a", 0.9)})
	cache.SetSearchResults(ctx, "q2", 8, SearchParams{K: 10, ScoreThreshold: 0.7}, []Segment{segment("b", 0.9)})
	cache.SetEmbedding(ctx, "q1", "model", []float32{0.1})

	removed := cache.InvalidateSearch(ctx, "")
	assert.Equal(t, 2, removed)

	_, ok := cache.GetEmbedding(ctx, "q1", "model")
	assert.True(t, ok)
}

func TestTieredCacheInvalidateSearchScopedToSearchTier(t *testing.T) {
	store := newFakeStore()
	cache := NewTieredCache(store)
	ctx := context.Background()

	cache.SetSearchResults(ctx, "q1", 7, SearchParams{K: 10, ScoreThreshold: 0.7}, []Segment{segment("a", 0.9)})
	require.NoError(t, store.SetEx(ctx, "ratelimit:minute:7:202506011200", []byte("3"), time.Minute))

	removed := cache.InvalidateSearch(ctx, "ratelimit:*")
	assert.Zero(t, removed)
	_, found, err := store.Get(ctx, "ratelimit:minute:7:202506011200")
	require.NoError(t, err)
	assert.True(t, found, "patterns outside the search tier must not reach other key families")

	removed = cache.InvalidateSearch(ctx, "*")
	assert.Equal(t, 1, removed)
	_, found, err = store.Get(ctx, "ratelimit:minute:7:202506011200")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTieredCacheDocumentMetadata(t *testing.T) {
	cache := NewTieredCache(newFakeStore())
	ctx := context.Background()

	cache.SetDocumentMetadata(ctx, "doc-7", map[string]string{"department": "hr"})

	meta, ok := cache.GetDocumentMetadata(ctx, "doc-7")
	require.True(t, ok)
	assert.Equal(t, "hr", meta["department"])

	removed := cache.InvalidateDocument(ctx, "doc-7")
	assert.Equal(t, 1, removed)
	_, ok = cache.GetDocumentMetadata(ctx, "doc-7")
	assert.False(t, ok)
}

func TestTieredCacheStats(t *testing.T) {
	cache := NewTieredCache(newFakeStore())
	ctx := context.Background()

	cache.SetEmbedding(ctx, "a", "model", []float32{0.1})
	cache.SetEmbedding(ctx, "b", "model", []float32{0.2})
	cache.SetSearchResults(ctx, "q", 7, SearchParams{K: 10, ScoreThreshold: 0.7}, []Segment{segment("x", 0.9)})

	stats := cache.Stats(ctx)
	assert.Equal(t, 2, stats.KeyCounts["embedding"])
	assert.Equal(t, 1, stats.KeyCounts["search"])
	assert.Equal(t, 0, stats.KeyCounts["user_context"])
}
