package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeedOnlyOnEmptyWindow(t *testing.T) {
	m := NewMemory(5)
	profile := &UserProfile{Name: "Anna", Position: "Analyst", Department: "Finance"}

	m.Seed(7, profile, LangEnglish)
	m.Seed(7, profile, LangEnglish)

	history := m.History(7)
	require.Len(t, history, 1)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Contains(t, history[0].Content, "Anna")
	assert.Contains(t, history[0].Content, "Finance")
}

func TestMemorySeedNilProfileIsNoop(t *testing.T) {
	m := NewMemory(5)
	m.Seed(7, nil, LangEnglish)
	assert.Empty(t, m.History(7))
}

func TestMemorySeedSkippedAfterFirstExchange(t *testing.T) {
	m := NewMemory(5)
	m.AppendExchange(7, "q", "a")
	m.Seed(7, &UserProfile{Name: "Anna"}, LangEnglish)

	history := m.History(7)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
}

func TestMemoryExchangeOrder(t *testing.T) {
	m := NewMemory(5)
	m.AppendExchange(7, "first question", "first answer")
	m.AppendExchange(7, "second question", "second answer")

	history := m.History(7)
	require.Len(t, history, 4)
	assert.Equal(t, "first question", history[0].Content)
	assert.Equal(t, "first answer", history[1].Content)
	assert.Equal(t, "second question", history[2].Content)
	assert.Equal(t, "second answer", history[3].Content)
}

func TestMemoryTrimEvictsOldestKeepsSystemTurn(t *testing.T) {
	m := NewMemory(2)
	m.Seed(7, &UserProfile{Name: "Anna"}, LangEnglish)
	for i := 1; i <= 4; i++ {
		m.AppendExchange(7, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	history := m.History(7)
	require.Len(t, history, 5, "system turn plus two exchanges")
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Equal(t, "q3", history[1].Content)
	assert.Equal(t, "a4", history[4].Content)
}

func TestMemoryRecentReturnsNewestTurns(t *testing.T) {
	m := NewMemory(5)
	m.AppendExchange(7, "q1", "a1")
	m.AppendExchange(7, "q2", "a2")

	recent := m.Recent(7, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "q2", recent[0].Content)
	assert.Equal(t, "a2", recent[1].Content)
}

func TestMemoryClear(t *testing.T) {
	m := NewMemory(5)
	m.AppendExchange(7, "q", "a")

	assert.True(t, m.Clear(7))
	assert.Empty(t, m.History(7))
	assert.False(t, m.Clear(7))
}

func TestMemoryActiveUsers(t *testing.T) {
	m := NewMemory(5)
	assert.Equal(t, 0, m.ActiveUsers())

	m.AppendExchange(7, "q", "a")
	m.AppendExchange(8, "q", "a")
	assert.Equal(t, 2, m.ActiveUsers())

	m.Clear(7)
	assert.Equal(t, 1, m.ActiveUsers())
}

func TestMemoryHistoryIsACopy(t *testing.T) {
	m := NewMemory(5)
	m.AppendExchange(7, "q", "a")

	history := m.History(7)
	history[0].Content = "mutated"

	assert.Equal(t, "q", m.History(7)[0].Content)
}
