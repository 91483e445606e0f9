package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"memchat/chat"
)

// MemStore is a Store kept in process memory. It backs tests and
// deployments that run without a database.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]ConversationMemory
}

func NewMemStore() *MemStore {
	return &MemStore{records: map[string]ConversationMemory{}}
}

func clone(m ConversationMemory) ConversationMemory {
	m.KeyPoints = append([]string(nil), m.KeyPoints...)
	m.Entities = append([]string(nil), m.Entities...)
	return m
}

func (s *MemStore) Get(_ context.Context, conversationID string) (*ConversationMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(m)
	return &c, nil
}

func (s *MemStore) Insert(_ context.Context, m *ConversationMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[m.ConversationID]; ok {
		return chat.ErrDuplicateMemory
	}
	s.records[m.ConversationID] = clone(*m)
	return nil
}

func (s *MemStore) Upsert(_ context.Context, m *ConversationMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(*m)
	if prev, ok := s.records[m.ConversationID]; ok {
		next.CreatedAt = prev.CreatedAt
		if next.UserID == "" {
			next.UserID = prev.UserID
		}
	}
	s.records[m.ConversationID] = next
	return nil
}

func (s *MemStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, conversationID)
	return nil
}

// scoped returns the records visible to userID, newest first.
func (s *MemStore) scoped(userID string) []ConversationMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConversationMemory, 0, len(s.records))
	for _, m := range s.records {
		if userID != "" && m.UserID != userID {
			continue
		}
		out = append(out, clone(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}

func (s *MemStore) TextSearch(_ context.Context, query, userID string, limit int) ([]ConversationMemory, error) {
	return Rank(s.scoped(userID), query, limit), nil
}

func (s *MemStore) MatchSubstring(_ context.Context, query, userID string, limit int) ([]ConversationMemory, error) {
	var out []ConversationMemory
	for _, m := range s.scoped(userID) {
		if limit > 0 && len(out) >= limit {
			break
		}
		if m.Matches(query) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemStore) UpdatedSince(_ context.Context, userID string, since time.Time) ([]ConversationMemory, error) {
	var out []ConversationMemory
	for _, m := range s.scoped(userID) {
		if !m.UpdatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}
