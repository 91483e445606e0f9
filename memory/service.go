package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"memchat/chat"
	"memchat/platform"
)

const (
	DefaultSearchLimit   = 10
	RelevantContextLimit = 5
)

// Service derives memories from message histories and keeps them in a Store.
type Service struct {
	store   Store
	deriver *Deriver
	now     func() time.Time
	log     logrus.FieldLogger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

func WithDeriveConfig(cfg DeriveConfig) Option {
	return func(s *Service) { s.deriver = NewDeriver(cfg) }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		deriver: NewDeriver(DefaultDeriveConfig()),
		now:     time.Now,
		log:     platform.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Derive exposes the pure derivation used by Create and Update.
func (s *Service) Derive(messages []chat.Message) Digest {
	return s.deriver.Derive(messages)
}

func (s *Service) build(conversationID, userID string, messages []chat.Message) *ConversationMemory {
	d := s.deriver.Derive(messages)
	now := s.now().UTC()
	return &ConversationMemory{
		ConversationID: conversationID,
		UserID:         userID,
		Summary:        d.Summary,
		KeyPoints:      d.KeyPoints,
		Entities:       d.Entities,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func validate(conversationID string, messages []chat.Message) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: conversationId is required", chat.ErrValidation)
	}
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages are required", chat.ErrValidation)
	}
	return nil
}

// owns reports whether userID may see m. An empty userID is unscoped and a
// record without owner is shared.
func owns(m *ConversationMemory, userID string) bool {
	return userID == "" || m.UserID == "" || m.UserID == userID
}

func notOwned(conversationID string) error {
	return fmt.Errorf("%w: conversation %q", ErrNotFound, conversationID)
}

// checkOwner fails with ErrNotFound when the stored record belongs to another
// user. A missing record passes.
func (s *Service) checkOwner(ctx context.Context, op, conversationID, userID string) error {
	if userID == "" {
		return nil
	}
	m, err := s.store.Get(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return internal(op, conversationID, err)
	}
	if !owns(m, userID) {
		return notOwned(conversationID)
	}
	return nil
}

func internal(op, conversationID string, err error) error {
	return fmt.Errorf("%w: %s memory %q: %w", chat.ErrInternal, op, conversationID, err)
}

// CreateMemory stores a new record. It fails with chat.ErrDuplicateMemory when
// one already exists; UpdateMemory is the upsert path.
func (s *Service) CreateMemory(ctx context.Context, conversationID string, messages []chat.Message, userID string) (*ConversationMemory, error) {
	if err := validate(conversationID, messages); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, "create", conversationID, userID); err != nil {
		return nil, err
	}
	m := s.build(conversationID, userID, messages)
	if err := s.store.Insert(ctx, m); err != nil {
		if errors.Is(err, chat.ErrDuplicateMemory) {
			return nil, err
		}
		return nil, internal("create", conversationID, err)
	}
	return m, nil
}

// UpdateMemory recomputes the record from the complete message list and
// upserts it. CreatedAt of an existing record is preserved. userID may be
// empty, in which case a stored user id is kept; a record of another user is
// reported as ErrNotFound.
func (s *Service) UpdateMemory(ctx context.Context, conversationID string, messages []chat.Message, userID string) error {
	if err := validate(conversationID, messages); err != nil {
		return err
	}
	if err := s.checkOwner(ctx, "update", conversationID, userID); err != nil {
		return err
	}
	if err := s.store.Upsert(ctx, s.build(conversationID, userID, messages)); err != nil {
		return internal("update", conversationID, err)
	}
	return nil
}

// GetMemory returns nil without error when the conversation has no memory, and
// ErrNotFound when the memory belongs to a user other than userID.
func (s *Service) GetMemory(ctx context.Context, conversationID, userID string) (*ConversationMemory, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("%w: conversationId is required", chat.ErrValidation)
	}
	m, err := s.store.Get(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("get", conversationID, err)
	}
	if !owns(m, userID) {
		return nil, notOwned(conversationID)
	}
	return m, nil
}

// DeleteMemory is idempotent. It refuses the memory of another user.
func (s *Service) DeleteMemory(ctx context.Context, conversationID, userID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: conversationId is required", chat.ErrValidation)
	}
	if err := s.checkOwner(ctx, "delete", conversationID, userID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, conversationID); err != nil && !errors.Is(err, ErrNotFound) {
		return internal("delete", conversationID, err)
	}
	return nil
}

// SearchMemories ranks memories by relevance to query, optionally scoped to a
// user. A non-positive limit means DefaultSearchLimit.
func (s *Service) SearchMemories(ctx context.Context, query, userID string, limit int) ([]ConversationMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", chat.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	found, err := s.store.TextSearch(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search memories: %w", chat.ErrInternal, err)
	}
	return found, nil
}

// GetRelevantContext is the cheap lookup: case-insensitive substring match,
// unranked, at most RelevantContextLimit records.
func (s *Service) GetRelevantContext(ctx context.Context, query, userID string) ([]ConversationMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", chat.ErrValidation)
	}
	found, err := s.store.MatchSubstring(ctx, query, userID, RelevantContextLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: relevant context: %w", chat.ErrInternal, err)
	}
	return found, nil
}

// UpdatedSince lists the memories of a user regenerated at or after since.
func (s *Service) UpdatedSince(ctx context.Context, userID string, since time.Time) ([]ConversationMemory, error) {
	found, err := s.store.UpdatedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: list memories: %w", chat.ErrInternal, err)
	}
	return found, nil
}

// ContextFor loads the memory of a conversation and renders it for a prompt.
// Failures are logged and yield an empty context: memory never blocks a reply.
// The memory of another user yields an empty context as well.
func (s *Service) ContextFor(ctx context.Context, conversationID, userID string) string {
	if conversationID == "" {
		return ""
	}
	m, err := s.GetMemory(ctx, conversationID, userID)
	if err != nil {
		s.log.WithField("conversationId", conversationID).Warnf("Failed to retrieve memory: %s", err)
		return ""
	}
	return FormatContext(m)
}
