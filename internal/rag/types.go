package rag

import (
	"context"
	"time"
)

type Language string

const (
	LangRussian Language = "ru"
	LangEnglish Language = "en"
	LangArabic  Language = "ar"
)

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Segment is the atomic unit of retrievable text: content plus source
// metadata and the similarity score the index assigned to it.
type Segment struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// UserProfile carries the closed set of attributes used to enrich prompts.
// It is supplied per call and validated at the HTTP boundary; the engine
// never persists it.
type UserProfile struct {
	Name       string `json:"name"`
	Position   string `json:"position"`
	Department string `json:"department"`
	StartDate  string `json:"start_date"`
}

type Request struct {
	Query     string
	UserID    int64
	Profile   *UserProfile
	Language  Language
	UseMemory bool
}

type Response struct {
	ID               string     `json:"id"`
	Answer           string     `json:"answer"`
	Sources          []Segment  `json:"sources"`
	Complexity       Complexity `json:"complexity"`
	ProcessingMethod string     `json:"processing_method"`
	History          []Message  `json:"history,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Generator is the text-generation service: role-tagged chat completion
// plus embeddings.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type IndexStats struct {
	Collection string `json:"collection"`
	Segments   int64  `json:"segments"`
}

// VectorIndex is the similarity index. Scan is a metadata-only path that
// must not require the embedding service to be reachable.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Segment, error)
	Scan(ctx context.Context, filter map[string][]string, limit int) ([]Segment, error)
	Delete(ctx context.Context, filter map[string]string) error
	Stats(ctx context.Context) (IndexStats, error)
}

// Store is the shared byte-oriented key-value store backing the cache
// tiers and the rate-limit counters.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}
