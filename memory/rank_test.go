package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	memories := []ConversationMemory{
		{ConversationID: "css", Summary: "Styling buttons with css", UpdatedAt: base},
		{ConversationID: "redis-once", Summary: "Caching layer", Entities: []string{"Redis"}, UpdatedAt: base},
		{ConversationID: "redis-twice", Summary: "Redis eviction and Redis memory", Entities: []string{"Redis"}, UpdatedAt: base},
	}

	got := Rank(memories, "redis", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "redis-twice", got[0].ConversationID)
	assert.Equal(t, "redis-once", got[1].ConversationID)

	assert.Len(t, Rank(memories, "redis", 1), 1)
	assert.Empty(t, Rank(memories, "postgres", 0))
	assert.Empty(t, Rank(memories, "!", 0))
	assert.Empty(t, Rank(nil, "redis", 0))
}

func TestRankTieBreaksOnRecency(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	memories := []ConversationMemory{
		{ConversationID: "old", Summary: "golang channels", UpdatedAt: base},
		{ConversationID: "new", Summary: "golang channels", UpdatedAt: base.Add(time.Hour)},
	}

	got := Rank(memories, "channels", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ConversationID)
}

func TestMemStoreIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	m := &ConversationMemory{ConversationID: "c", KeyPoints: []string{"a?"}}
	require.NoError(t, s.Insert(ctx, m))

	m.KeyPoints[0] = "mutated"
	got, err := s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a?"}, got.KeyPoints)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreUpdatedSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Upsert(ctx, &ConversationMemory{ConversationID: "old", UserID: "u", UpdatedAt: base}))
	require.NoError(t, s.Upsert(ctx, &ConversationMemory{ConversationID: "new", UserID: "u", UpdatedAt: base.Add(48 * time.Hour)}))
	require.NoError(t, s.Upsert(ctx, &ConversationMemory{ConversationID: "x", UserID: "v", UpdatedAt: base.Add(48 * time.Hour)}))

	got, err := s.UpdatedSince(ctx, "u", base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ConversationID)
}
