package rag

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/metrics"
	"github.com/onboard-agent/backend/pkg/logger"
)

const (
	methodSimple         = "simple"
	methodConversational = "conversational"
	methodFallback       = "fallback"
	methodDegraded       = "degraded"
)

// Config carries the retrieval and routing knobs of the engine.
type Config struct {
	TopK              int
	ScoreThreshold    float32
	FallbackTopK      int
	FallbackThreshold float32
	MetadataLimit     int
	DefaultLanguage   Language
	RecentHistory     int
}

func DefaultConfig() Config {
	return Config{
		TopK:              10,
		ScoreThreshold:    0.7,
		FallbackTopK:      3,
		FallbackThreshold: 0.5,
		MetadataLimit:     5,
		DefaultLanguage:   LangRussian,
		RecentHistory:     10,
	}
}

// Engine is the end-to-end query pipeline: rate limit, classify, route to
// the simple or conversational path, and absorb any failure through the
// fallback chain. Apart from rate limiting and caller cancellation it
// always returns a response, never an error.
type Engine struct {
	cfg       Config
	retriever *Retriever
	gen       Generator
	cache     *TieredCache
	limiter   *Limiter
	memory    *Memory
	index     VectorIndex
}

func NewEngine(cfg Config, retriever *Retriever, gen Generator, cache *TieredCache, limiter *Limiter, memory *Memory, index VectorIndex) *Engine {
	if cfg.TopK == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:       cfg,
		retriever: retriever,
		gen:       gen,
		cache:     cache,
		limiter:   limiter,
		memory:    memory,
		index:     index,
	}
}

// ProcessQuery runs the pipeline for one query. The returned error is
// ErrRateLimited or a context error; every other failure degrades into
// the fallback answer or, at worst, a language-matched apology.
func (e *Engine) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	queryID := uuid.New().String()
	lang := normalizeLanguage(req.Language, e.cfg.DefaultLanguage)

	if !e.limiter.Allow(ctx, req.UserID) {
		return nil, ErrRateLimited
	}

	complexity := Classify(req.Query)

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.Int64("user_id", req.UserID),
		zap.Int("query_length", len(req.Query)),
		zap.String("complexity", string(complexity)),
		zap.String("language", string(lang)),
		zap.Bool("use_memory", req.UseMemory),
	)

	var resp *Response
	var err error
	if complexity == ComplexitySimple && !req.UseMemory {
		resp, err = e.simpleQuery(ctx, req, lang)
	} else {
		resp, err = e.conversationalQuery(ctx, req, lang)
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Primary path failed, entering fallback",
			zap.String("query_id", queryID),
			zap.Int64("user_id", req.UserID),
			zap.Error(err),
		)
		metrics.FallbackTotal.Inc()
		resp = e.fallback(ctx, req, lang)
	}

	resp.ID = queryID
	resp.Complexity = complexity
	resp.Timestamp = time.Now().UTC()

	metrics.QueryTotal.WithLabelValues(resp.ProcessingMethod, string(complexity)).Inc()
	metrics.QueryDuration.WithLabelValues(resp.ProcessingMethod).Observe(time.Since(start).Seconds())

	logger.Info("Query processed",
		zap.String("query_id", queryID),
		zap.String("method", resp.ProcessingMethod),
		zap.Int("sources", len(resp.Sources)),
		zap.Duration("latency", time.Since(start)),
	)

	return resp, nil
}

// simpleQuery handles factual lookups without conversational memory:
// profile-enriched retrieval, no compression, one generation call.
func (e *Engine) simpleQuery(ctx context.Context, req Request, lang Language) (*Response, error) {
	query := enrichQuery(req.Query, req.Profile, lang)

	segments, err := e.retriever.Search(ctx, query, SearchOptions{
		K:              e.cfg.TopK,
		ScoreThreshold: e.cfg.ScoreThreshold,
		UserID:         req.UserID,
	})
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, &RetrievalError{Reason: "no segments above threshold"}
	}

	answer, err := e.generate(ctx, lang, segments, nil, req.Query)
	if err != nil {
		return nil, err
	}

	return &Response{
		Answer:           answer,
		Sources:          segments,
		ProcessingMethod: methodSimple,
	}, nil
}

// conversationalQuery handles everything routed through memory:
// retrieves with compression, generates against the window, and commits
// to memory only after a successful answer. The profile system turn is
// composed in-request for generation but seeded into the window
// together with the exchange, so a failed or cancelled request leaves
// no turns behind.
func (e *Engine) conversationalQuery(ctx context.Context, req Request, lang Language) (*Response, error) {
	segments, err := e.retriever.Search(ctx, req.Query, SearchOptions{
		K:              e.cfg.TopK,
		ScoreThreshold: e.cfg.ScoreThreshold,
		UserID:         req.UserID,
		Compress:       true,
	})
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, &RetrievalError{Reason: "no segments above threshold"}
	}

	history := e.memory.History(req.UserID)
	if len(history) == 0 && req.Profile != nil {
		history = []Message{{Role: RoleSystem, Content: profileSummary(req.Profile, lang)}}
	}

	answer, err := e.generate(ctx, lang, segments, history, req.Query)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.memory.Seed(req.UserID, req.Profile, lang)
	e.memory.AppendExchange(req.UserID, req.Query, answer)

	return &Response{
		Answer:           answer,
		Sources:          segments,
		ProcessingMethod: methodConversational,
		History:          e.memory.Recent(req.UserID, e.cfg.RecentHistory),
	}, nil
}

// fallback is the degraded retrieval path: metadata scan by the user's
// department when known, else a broadened similarity search with a
// lowered threshold, then one generation call. If even that fails the
// engine answers with a canned apology rather than erroring out.
func (e *Engine) fallback(ctx context.Context, req Request, lang Language) *Response {
	segments := e.fallbackSegments(ctx, req)

	if len(segments) > 0 {
		answer, err := e.generate(ctx, lang, segments, nil, req.Query)
		if err == nil {
			return &Response{
				Answer:           answer,
				Sources:          segments,
				ProcessingMethod: methodFallback,
			}
		}
		logger.Error("Fallback generation failed", zap.Int64("user_id", req.UserID), zap.Error(err))
	}

	metrics.DegradedTotal.Inc()
	return &Response{
		Answer:           apology(lang),
		Sources:          []Segment{},
		ProcessingMethod: methodDegraded,
	}
}

func (e *Engine) fallbackSegments(ctx context.Context, req Request) []Segment {
	if req.Profile != nil && req.Profile.Department != "" {
		filter := map[string][]string{
			"department": {req.Profile.Department, "general"},
		}
		segments, err := e.retriever.SearchByMetadata(ctx, filter, e.cfg.MetadataLimit)
		if err == nil && len(segments) > 0 {
			return segments
		}
		if err != nil {
			logger.Warn("Metadata fallback failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		}
	}

	segments, err := e.retriever.Search(ctx, req.Query, SearchOptions{
		K:              e.cfg.FallbackTopK,
		ScoreThreshold: e.cfg.FallbackThreshold,
		UserID:         req.UserID,
	})
	if err != nil {
		logger.Warn("Broadened fallback search failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		return nil
	}
	return segments
}

func (e *Engine) generate(ctx context.Context, lang Language, segments []Segment, history []Message, question string) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{
		Role:    RoleSystem,
		Content: systemPrompt(lang) + "\n\n" + renderContext(segments),
	})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: question})

	answer, err := e.gen.Generate(ctx, messages)
	if err != nil {
		return "", &GenerationError{Stage: "answer", Err: err}
	}
	if strings.TrimSpace(answer) == "" {
		return "", &GenerationError{Stage: "answer", Err: errEmptyCompletion}
	}
	return answer, nil
}

func renderContext(segments []Segment) string {
	var sb strings.Builder
	sb.WriteString("Context from the corporate documentation:\n")
	for i, seg := range segments {
		sb.WriteString("\n[")
		sb.WriteString(sourceName(seg, i))
		sb.WriteString("]\n")
		sb.WriteString(seg.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func sourceName(seg Segment, i int) string {
	if name, ok := seg.Metadata["source"]; ok && name != "" {
		return name
	}
	if id, ok := seg.Metadata["document_id"]; ok && id != "" {
		return id
	}
	return "segment " + strconv.Itoa(i+1)
}
