// Package memory derives and stores a compact digest of a conversation
// (summary, key points, entities) so that older turns can be dropped from a
// prompt without losing continuity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by a Store when no record exists for a conversation.
var ErrNotFound = errors.New("memory not found")

// ConversationMemory is the single live digest of one conversation.
type ConversationMemory struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId,omitempty"`
	Summary        string    `json:"summary"`
	KeyPoints      []string  `json:"keyPoints"`
	Entities       []string  `json:"entities"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store persists memory records keyed by conversation id.
//
// Insert fails with chat.ErrDuplicateMemory when a record exists. Upsert
// overwrites Summary, KeyPoints, Entities and UpdatedAt of an existing record
// and keeps its CreatedAt; an empty UserID never clears a stored one. Delete of
// a missing record is not an error.
type Store interface {
	Get(ctx context.Context, conversationID string) (*ConversationMemory, error)
	Insert(ctx context.Context, m *ConversationMemory) error
	Upsert(ctx context.Context, m *ConversationMemory) error
	Delete(ctx context.Context, conversationID string) error
	// TextSearch ranks records by relevance to query, best first.
	TextSearch(ctx context.Context, query, userID string, limit int) ([]ConversationMemory, error)
	// MatchSubstring returns records where query occurs, ignoring case, in the
	// summary, a key point or an entity.
	MatchSubstring(ctx context.Context, query, userID string, limit int) ([]ConversationMemory, error)
	// UpdatedSince lists a user's records regenerated at or after since.
	UpdatedSince(ctx context.Context, userID string, since time.Time) ([]ConversationMemory, error)
}

// FormatContext renders a memory as text for injection into a prompt.
func FormatContext(m *ConversationMemory) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("Previous conversation context: %s\nKey points: %s\nEntities: %s\n\n",
		m.Summary, strings.Join(m.KeyPoints, ", "), strings.Join(m.Entities, ", "))
}

// Matches reports whether query occurs in any searchable field, ignoring case.
func (m ConversationMemory) Matches(query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(m.Summary), q) {
		return true
	}
	for _, s := range m.KeyPoints {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	for _, s := range m.Entities {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
