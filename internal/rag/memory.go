package rag

import (
	"sync"

	"go.uber.org/zap"

	"github.com/onboard-agent/backend/internal/metrics"
	"github.com/onboard-agent/backend/pkg/logger"
)

// Memory keeps a bounded conversation window per user for the lifetime of
// the process. Windows are created lazily, capped at maxExchanges
// question/answer pairs with oldest-first eviction, and guarded by a
// per-user lock so rapid concurrent requests for the same user serialize
// while different users proceed in parallel.
type Memory struct {
	mu           sync.Mutex
	windows      map[int64]*window
	maxExchanges int
}

type window struct {
	mu    sync.Mutex
	turns []Message
}

func NewMemory(maxExchanges int) *Memory {
	if maxExchanges <= 0 {
		maxExchanges = 5
	}
	return &Memory{
		windows:      make(map[int64]*window),
		maxExchanges: maxExchanges,
	}
}

// Seed prepends a system turn summarizing the profile, but only on a
// window that has no turns yet. Later generation calls then carry the
// grounding without re-sending the profile every time.
func (m *Memory) Seed(userID int64, profile *UserProfile, lang Language) {
	if profile == nil {
		return
	}
	w := m.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.turns) > 0 {
		return
	}
	w.turns = append(w.turns, Message{Role: RoleSystem, Content: profileSummary(profile, lang)})
}

func (m *Memory) Append(userID int64, turn Message) {
	w := m.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, turn)
	w.trim(m.maxExchanges)
}

// AppendExchange records a completed question/answer pair.
func (m *Memory) AppendExchange(userID int64, question, answer string) {
	w := m.window(userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	)
	w.trim(m.maxExchanges)
}

// History returns a copy of the user's turns, oldest first.
func (m *Memory) History(userID int64) []Message {
	m.mu.Lock()
	w, ok := m.windows[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Message, len(w.turns))
	copy(out, w.turns)
	return out
}

// Recent returns at most n of the newest turns.
func (m *Memory) Recent(userID int64, n int) []Message {
	turns := m.History(userID)
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

// Clear removes the user's window. It reports false when nothing existed.
func (m *Memory) Clear(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.windows[userID]; !ok {
		return false
	}
	delete(m.windows, userID)
	metrics.ActiveConversations.Set(float64(len(m.windows)))
	logger.Info("User memory cleared", zap.Int64("user_id", userID))
	return true
}

func (m *Memory) ActiveUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *Memory) window(userID int64) *window {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[userID]
	if !ok {
		w = &window{}
		m.windows[userID] = w
		metrics.ActiveConversations.Set(float64(len(m.windows)))
	}
	return w
}

// trim enforces the exchange cap, evicting oldest turns first while
// preserving a leading system turn.
func (w *window) trim(maxExchanges int) {
	limit := maxExchanges * 2
	start := 0
	if len(w.turns) > 0 && w.turns[0].Role == RoleSystem {
		start = 1
	}
	excess := len(w.turns) - start - limit
	if excess <= 0 {
		return
	}
	kept := make([]Message, 0, start+limit)
	kept = append(kept, w.turns[:start]...)
	kept = append(kept, w.turns[start+excess:]...)
	w.turns = kept
}
