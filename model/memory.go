package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memchat/chat"
	"memchat/memory"
)

// Memory is the row behind memory.ConversationMemory. SearchText is the
// lowercased concatenation of the searchable fields; MySQL keeps a FULLTEXT
// index over it.
type Memory struct {
	ID             uint                        `gorm:"primaryKey;autoIncrement"`
	ConversationID string                      `gorm:"type:varchar(64);not null;uniqueIndex"`
	UserID         string                      `gorm:"type:varchar(64);index"`
	Summary        string                      `gorm:"type:text"`
	KeyPoints      datatypes.JSONSlice[string] `gorm:"type:json"`
	Entities       datatypes.JSONSlice[string] `gorm:"type:json"`
	SearchText     string                      `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Memory) TableName() string {
	return "memories"
}

func searchText(m *memory.ConversationMemory) string {
	parts := make([]string, 0, 1+len(m.KeyPoints)+len(m.Entities))
	parts = append(parts, m.Summary)
	parts = append(parts, m.KeyPoints...)
	parts = append(parts, m.Entities...)
	return strings.ToLower(strings.Join(parts, "\n"))
}

func memoryRow(m *memory.ConversationMemory) *Memory {
	return &Memory{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Summary:        m.Summary,
		KeyPoints:      datatypes.NewJSONSlice(nonNil(m.KeyPoints)),
		Entities:       datatypes.NewJSONSlice(nonNil(m.Entities)),
		SearchText:     searchText(m),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (r Memory) toDomain() memory.ConversationMemory {
	return memory.ConversationMemory{
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Summary:        r.Summary,
		KeyPoints:      nonNil([]string(r.KeyPoints)),
		Entities:       nonNil([]string(r.Entities)),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toDomainList(rows []Memory) []memory.ConversationMemory {
	out := make([]memory.ConversationMemory, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

// MemoryStore implements memory.Store on gorm.
type MemoryStore struct {
	db *gorm.DB
}

func NewMemoryStore(db *gorm.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (*memory.ConversationMemory, error) {
	var row Memory
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, memory.ErrNotFound
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	m := row.toDomain()
	return &m, nil
}

func (s *MemoryStore) Insert(ctx context.Context, m *memory.ConversationMemory) error {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&Memory{}).Where("conversation_id = ?", m.ConversationID).Count(&count).Error; err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	if count > 0 {
		return chat.ErrDuplicateMemory
	}
	if err := db.Create(memoryRow(m)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return chat.ErrDuplicateMemory
		}
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// Upsert relies on the unique index on conversation_id, so concurrent writers
// for one conversation never produce two rows; the last one wins.
func (s *MemoryStore) Upsert(ctx context.Context, m *memory.ConversationMemory) error {
	columns := []string{"summary", "key_points", "entities", "search_text", "updated_at"}
	if m.UserID != "" {
		columns = append(columns, "user_id")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(memoryRow(m)).Error
	if err != nil {
		return fmt.Errorf("failed to upsert memory: %w", err)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&Memory{}).Error; err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

func (s *MemoryStore) scoped(ctx context.Context, userID string) *gorm.DB {
	db := s.db.WithContext(ctx).Model(&Memory{})
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	return db
}

// TextSearch uses the FULLTEXT index on MySQL. Other databases have no portable
// relevance search, so the user's records are ranked in process.
func (s *MemoryStore) TextSearch(ctx context.Context, query, userID string, limit int) ([]memory.ConversationMemory, error) {
	var rows []Memory
	if s.db.Dialector.Name() == "mysql" {
		match := "MATCH(search_text) AGAINST (? IN NATURAL LANGUAGE MODE)"
		err := s.scoped(ctx, userID).
			Where(match, query).
			Order(clause.Expr{SQL: match + " DESC", Vars: []interface{}{query}}).
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("full text search failed: %w", err)
		}
		return toDomainList(rows), nil
	}

	if err := s.scoped(ctx, userID).Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return memory.Rank(toDomainList(rows), query, limit), nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// MatchSubstring narrows candidates with LIKE on search_text and confirms each
// against the individual fields, since the concatenation can match across a
// field boundary.
func (s *MemoryStore) MatchSubstring(ctx context.Context, query, userID string, limit int) ([]memory.ConversationMemory, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	var rows []Memory
	db := s.scoped(ctx, userID).Where("search_text LIKE ? ESCAPE '!'", pattern).Order("updated_at DESC")
	if limit > 0 {
		db = db.Limit(limit * 4)
	}
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	var out []memory.ConversationMemory
	for _, r := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		if m := r.toDomain(); m.Matches(query) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdatedSince(ctx context.Context, userID string, since time.Time) ([]memory.ConversationMemory, error) {
	var rows []Memory
	err := s.scoped(ctx, userID).
		Where("updated_at >= ?", since).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return toDomainList(rows), nil
}
