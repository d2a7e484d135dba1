package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/metrics"
	"github.com/onboard-agent/backend/pkg/logger"
)

type SearchOptions struct {
	K              int
	ScoreThreshold float32
	Filter         map[string]string
	UserID         int64
	// Compress runs the retrieved segments through a secondary generation
	// call that keeps only query-relevant sentences. Used on the
	// conversational path, where context volume grows with the dialog.
	Compress bool
}

// Retriever composes the vector index, the generator (for embeddings and
// context compression) and the tiered cache into the retrieval stage.
type Retriever struct {
	index          VectorIndex
	gen            Generator
	cache          *TieredCache
	embeddingModel string
}

func NewRetriever(index VectorIndex, gen Generator, cache *TieredCache, embeddingModel string) *Retriever {
	return &Retriever{
		index:          index,
		gen:            gen,
		cache:          cache,
		embeddingModel: embeddingModel,
	}
}

// Search runs cache-aside similarity retrieval: identical
// (query, k, filter, threshold) tuples within TTL are served from the
// cache without touching the index. The cache holds the uncompressed
// result set; compression is a per-call transform applied after the
// cache, since the same tuple is queried both with and without it.
func (r *Retriever) Search(ctx context.Context, query string, opts SearchOptions) ([]Segment, error) {
	params := SearchParams{K: opts.K, ScoreThreshold: opts.ScoreThreshold, Filter: opts.Filter}

	if segments, ok := r.cache.GetSearchResults(ctx, query, opts.UserID, params); ok {
		logger.Debug("Search cache hit",
			zap.Int64("user_id", opts.UserID),
			zap.Int("segments", len(segments)),
		)
		if opts.Compress && len(segments) > 0 {
			segments = r.compress(ctx, query, segments)
		}
		return segments, nil
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Reason: "query embedding", Err: err}
	}

	raw, err := r.index.Search(ctx, vector, opts.K, opts.Filter)
	if err != nil {
		return nil, &RetrievalError{Reason: "similarity search", Err: err}
	}

	segments := make([]Segment, 0, len(raw))
	for _, seg := range raw {
		if seg.Score >= opts.ScoreThreshold {
			segments = append(segments, seg)
		}
	}
	metrics.RetrievedSegments.Observe(float64(len(segments)))

	if ctx.Err() == nil {
		r.cache.SetSearchResults(ctx, query, opts.UserID, params, segments)
	}

	if opts.Compress && len(segments) > 0 {
		segments = r.compress(ctx, query, segments)
	}

	logger.Info("Similarity search completed",
		zap.Int("k", opts.K),
		zap.Float32("score_threshold", opts.ScoreThreshold),
		zap.Int("segments", len(segments)),
		zap.Bool("compressed", opts.Compress),
	)

	return segments, nil
}

// SearchByMetadata bypasses similarity scoring entirely: it scans the
// index for segments matching the filter, newest indexed first. The path
// stays usable when the embedding service is down, which is exactly when
// the fallback chain needs it.
func (r *Retriever) SearchByMetadata(ctx context.Context, filter map[string][]string, limit int) ([]Segment, error) {
	segments, err := r.index.Scan(ctx, filter, limit)
	if err != nil {
		return nil, &RetrievalError{Reason: "metadata scan", Err: err}
	}
	logger.Info("Metadata search completed", zap.Int("segments", len(segments)))
	return segments, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if vector, ok := r.cache.GetEmbedding(ctx, query, r.embeddingModel); ok {
		return vector, nil
	}
	vectors, err := r.gen.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding service returned no vectors")
	}
	if ctx.Err() == nil {
		r.cache.SetEmbedding(ctx, query, r.embeddingModel, vectors[0])
	}
	return vectors[0], nil
}

const compressionPrompt = `You are a context compressor. For each numbered excerpt, return only the sentences relevant to the question, in the form "[N] sentences". Omit excerpts with nothing relevant. Do not add or rephrase anything.`

var extractLine = regexp.MustCompile(`(?m)^\[(\d+)\]\s*(.+)$`)

// compress issues one generation call that strips each segment down to
// its query-relevant sentences. Failure is never fatal: the original
// segments are returned so the answer call still has context.
func (r *Retriever) compress(ctx context.Context, query string, segments []Segment) []Segment {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	for i, seg := range segments {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, seg.Content)
	}

	out, err := r.gen.Generate(ctx, []Message{
		{Role: RoleSystem, Content: compressionPrompt},
		{Role: RoleUser, Content: sb.String()},
	})
	if err != nil {
		logger.Warn("Context compression failed, keeping full segments", zap.Error(err))
		return segments
	}

	matches := extractLine.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		logger.Warn("Context compression returned nothing parseable, keeping full segments")
		return segments
	}

	compressed := make([]Segment, 0, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(segments) {
			continue
		}
		seg := segments[idx-1]
		seg.Content = strings.TrimSpace(m[2])
		if seg.Content != "" {
			compressed = append(compressed, seg)
		}
	}
	if len(compressed) == 0 {
		return segments
	}

	logger.Debug("Context compressed",
		zap.Int("before", len(segments)),
		zap.Int("after", len(compressed)),
	)
	return compressed
}
