package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memchat/chat"
	"memchat/model"
)

const ConversationListLimit = 50

type ConversationRepo interface {
	List(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Create(ctx context.Context, c *model.Conversation) error
	Save(ctx context.Context, c *model.Conversation) error
	Delete(ctx context.Context, id string) (bool, error)
}

type MemoryDeleter interface {
	DeleteMemory(ctx context.Context, conversationID, userID string) error
}

type ConversationService struct {
	Repo     ConversationRepo
	Memories MemoryDeleter
}

type ConversationInput struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Model    string         `json:"model"`
	Messages []chat.Message `json:"messages"`
}

func (in *ConversationInput) toModel(userID string) (*model.Conversation, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, fmt.Errorf("%w: conversation id is required", chat.ErrValidation)
	}
	c := &model.Conversation{ID: in.ID, UserID: userID, Title: in.Title, Model: in.Model}
	for _, m := range in.Messages {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		c.Messages = append(c.Messages, model.NewMessage(in.ID, m))
	}
	return c, nil
}

func (s *ConversationService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.Repo.List(ctx, userID, ConversationListLimit)
}

// Get returns model.ErrConversationNotFound for a conversation owned by
// another user.
func (s *ConversationService) Get(ctx context.Context, id, userID string) (*model.Conversation, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && c.UserID != "" && c.UserID != userID {
		return nil, model.ErrConversationNotFound
	}
	return c, nil
}

func (s *ConversationService) Create(ctx context.Context, in *ConversationInput, userID string) (*model.Conversation, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: conversation id and title are required", chat.ErrValidation)
	}
	c, err := in.toModel(userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Repo.Get(ctx, c.ID); err == nil {
		return nil, model.ErrConversationExists
	} else if !errors.Is(err, model.ErrConversationNotFound) {
		return nil, err
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save creates or replaces a conversation. Fields left empty keep their stored
// value, and a nil message list keeps the stored messages.
func (s *ConversationService) Save(ctx context.Context, in *ConversationInput, userID string) (*model.Conversation, error) {
	c, err := in.toModel(userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.Repo.Get(ctx, c.ID)
	switch {
	case err == nil:
		if c.UserID == "" {
			c.UserID = existing.UserID
		} else if existing.UserID != "" && existing.UserID != c.UserID {
			return nil, model.ErrConversationNotFound
		}
		c.CreatedAt = existing.CreatedAt
		if c.Title == "" {
			c.Title = existing.Title
		}
		if c.Model == "" {
			c.Model = existing.Model
		}
		if in.Messages == nil {
			c.Messages = existing.Messages
		}
	case !errors.Is(err, model.ErrConversationNotFound):
		return nil, err
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes the conversation and, best effort, its memory.
func (s *ConversationService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	found, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrConversationNotFound
	}
	if s.Memories != nil {
		if err := s.Memories.DeleteMemory(ctx, id, userID); err != nil {
			logger.Warnf("failed to delete memory of conversation %s: %s", id, err)
		}
	}
	return nil
}
