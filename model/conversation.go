package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memchat/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation already exists")
)

type Conversation struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID      string    `gorm:"type:varchar(64);index:idx_user_id_updated_at" json:"userId,omitempty"`
	Title       string    `gorm:"type:varchar(255)" json:"title"`
	Model       string    `gorm:"type:varchar(64)" json:"model,omitempty"`
	TotalTokens int       `json:"totalTokens"`
	Messages    []Message `gorm:"foreignKey:ConversationID;references:ID" json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `gorm:"index:idx_user_id_updated_at" json:"updatedAt"`
}

// ConversationStore persists conversations and their messages.
type ConversationStore struct {
	db *gorm.DB
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

// List returns the most recently updated conversations of a user. An empty
// userID lists every conversation.
func (s *ConversationStore) List(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	db := s.db.WithContext(ctx).Preload("Messages", orderedMessages).Order("updated_at DESC")
	if userID != "" {
		db = db.Where("user_id = ?", userID)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	var conversations []Conversation
	if err := db.Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.WithContext(ctx).Preload("Messages", orderedMessages).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

func (s *ConversationStore) Create(ctx context.Context, c *Conversation) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConversationExists
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// Save replaces the conversation and its whole message list.
func (s *ConversationStore) Save(ctx context.Context, c *Conversation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages := c.Messages
		c.Messages = nil
		defer func() { c.Messages = messages }()

		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = tx.NowFunc()
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "title", "model", "total_tokens", "updated_at"}),
		}).Create(c).Error
		if err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		if err := tx.Where("conversation_id = ?", c.ID).Delete(&Message{}).Error; err != nil {
			return fmt.Errorf("failed to replace messages: %w", err)
		}
		for i := range messages {
			messages[i].ID = 0
			messages[i].ConversationID = c.ID
		}
		if len(messages) > 0 {
			if err := tx.Create(&messages).Error; err != nil {
				return fmt.Errorf("failed to replace messages: %w", err)
			}
		}
		return nil
	})
}

// Delete removes a conversation and its messages. It reports whether the
// conversation existed.
func (s *ConversationStore) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Conversation{})
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return found, nil
}

// Owner returns the user id a conversation belongs to, empty for an
// anonymous one.
func (s *ConversationStore) Owner(ctx context.Context, id string) (string, error) {
	return owner(s.db.WithContext(ctx), id)
}

func owner(db *gorm.DB, id string) (string, error) {
	var c Conversation
	err := db.Select("id", "user_id").Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrConversationNotFound
		}
		return "", fmt.Errorf("failed to get conversation: %w", err)
	}
	return c.UserID, nil
}

// AppendMessage stores one message, creating the conversation with the given
// title when it does not exist yet. A conversation owned by a user other than
// userID is reported as ErrConversationNotFound.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID, userID, title string, m chat.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := tx.NowFunc()
		conversation := Conversation{ID: conversationID, UserID: userID, Title: title, Model: m.Model, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&conversation).Error; err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		stored, err := owner(tx, conversationID)
		if err != nil {
			return err
		}
		if userID != "" && stored != "" && stored != userID {
			return ErrConversationNotFound
		}

		row := NewMessage(conversationID, m)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}

		updates := map[string]interface{}{"updated_at": now}
		if m.Model != "" {
			updates["model"] = m.Model
		}
		if err := tx.Model(&Conversation{}).Where("id = ?", conversationID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
}

func (s *ConversationStore) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var rows []Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return ToChatMessages(rows), nil
}

// StaleForMemory lists conversations whose memory is missing or older than
// their last message. Conversations without an assistant reply are skipped.
func (s *ConversationStore) StaleForMemory(ctx context.Context, limit int) ([]Conversation, error) {
	db := s.db.WithContext(ctx).
		Table("conversations AS c").
		Select("c.id, c.user_id, c.title, c.updated_at").
		Joins("LEFT JOIN memories AS m ON m.conversation_id = c.id").
		Where("m.id IS NULL OR c.updated_at > m.updated_at").
		Where("EXISTS (SELECT 1 FROM messages WHERE messages.conversation_id = c.id AND messages.role = ?)", string(chat.RoleAssistant)).
		Order("c.updated_at")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var conversations []Conversation
	if err := db.Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale conversations: %w", err)
	}
	return conversations, nil
}
