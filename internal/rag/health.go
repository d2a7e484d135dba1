package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/onboard-agent/backend/pkg/logger"
)

type ComponentHealth struct {
	Connected bool   `json:"connected"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

type HealthStatus struct {
	Status              string          `json:"status"`
	VectorIndex         ComponentHealth `json:"vector_index"`
	Generator           ComponentHealth `json:"generator"`
	ActiveConversations int             `json:"active_conversations"`
	Cache               CacheStats      `json:"cache"`
	Timestamp           time.Time       `json:"timestamp"`
}

// HealthCheck probes both external dependencies synchronously: index
// collection stats plus a minimal generation round trip. Healthy only
// when both succeed; the failing component is named.
func (e *Engine) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		ActiveConversations: e.memory.ActiveUsers(),
		Cache:               e.cache.Stats(ctx),
		Timestamp:           time.Now().UTC(),
	}

	stats, err := e.index.Stats(ctx)
	if err != nil {
		status.VectorIndex = ComponentHealth{Error: err.Error()}
		logger.Warn("Health check: vector index unreachable", zap.Error(err))
	} else {
		status.VectorIndex = ComponentHealth{Connected: true, Detail: stats.Collection}
	}

	_, err = e.gen.Generate(ctx, []Message{{Role: RoleUser, Content: "ping"}})
	if err != nil {
		status.Generator = ComponentHealth{Error: err.Error()}
		logger.Warn("Health check: generator unreachable", zap.Error(err))
	} else {
		status.Generator = ComponentHealth{Connected: true}
	}

	switch {
	case status.VectorIndex.Connected && status.Generator.Connected:
		status.Status = "healthy"
	case status.VectorIndex.Connected || status.Generator.Connected:
		status.Status = "degraded"
	default:
		status.Status = "unhealthy"
	}
	return status
}

// ClearUserMemory resets the user's conversation window. False means
// there was nothing to clear.
func (e *Engine) ClearUserMemory(userID int64) bool {
	return e.memory.Clear(userID)
}

// UserHistory returns the user's conversation turns, oldest first.
func (e *Engine) UserHistory(userID int64) []Message {
	return e.memory.History(userID)
}

// InvalidateUserCache drops every cache entry for the user and reports
// how many were removed.
func (e *Engine) InvalidateUserCache(ctx context.Context, userID int64) int {
	return e.cache.InvalidateUser(ctx, userID)
}

// InvalidateSearchCache drops cached search results matching the
// pattern; an empty pattern clears the whole search tier.
func (e *Engine) InvalidateSearchCache(ctx context.Context, pattern string) int {
	return e.cache.InvalidateSearch(ctx, pattern)
}
