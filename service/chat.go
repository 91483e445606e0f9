package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"memchat/budget"
	"memchat/chat"
	"memchat/model"
	"memchat/platform"
)

const (
	DefaultTitle       = "New Chat"
	TitleLength        = 50
	memoryWriteTimeout = 30 * time.Second
)

var logger = platform.Logger

type Completer interface {
	Stream(ctx context.Context, req platform.CompletionRequest, onDelta func(string) error) (string, error)
}

type MessageRecorder interface {
	Owner(ctx context.Context, conversationID string) (string, error)
	AppendMessage(ctx context.Context, conversationID, userID, title string, m chat.Message) error
}

type MemoryKeeper interface {
	ContextFor(ctx context.Context, conversationID, userID string) string
	UpdateMemory(ctx context.Context, conversationID string, messages []chat.Message, userID string) error
}

type ChatRequest struct {
	Messages       []chat.Message `json:"messages"`
	ConversationID string         `json:"conversationId"`
	Model          string         `json:"model"`
	UserID         string         `json:"-"`
	RequestID      string         `json:"-"`
}

type ChatResult struct {
	Message chat.Message
	Budget  budget.Result
}

// ChatService runs one chat turn: memory lookup, context fitting, completion
// and persistence. The memory refresh after a reply runs in the background.
type ChatService struct {
	completer     Completer
	recorder      MessageRecorder
	memories      MemoryKeeper
	budgeter      *budget.Budgeter
	defaultModel  string
	memoryEnabled bool
	now           func() time.Time
	log           logrus.FieldLogger
	wg            sync.WaitGroup
}

type ChatOption func(*ChatService)

func WithRecorder(r MessageRecorder) ChatOption {
	return func(s *ChatService) { s.recorder = r }
}

func WithMemory(m MemoryKeeper) ChatOption {
	return func(s *ChatService) {
		s.memories = m
		s.memoryEnabled = m != nil
	}
}

func WithBudgeter(b *budget.Budgeter) ChatOption {
	return func(s *ChatService) { s.budgeter = b }
}

func WithDefaultModel(model string) ChatOption {
	return func(s *ChatService) { s.defaultModel = model }
}

func WithChatClock(now func() time.Time) ChatOption {
	return func(s *ChatService) { s.now = now }
}

func WithChatLogger(l logrus.FieldLogger) ChatOption {
	return func(s *ChatService) { s.log = l }
}

func NewChatService(completer Completer, opts ...ChatOption) *ChatService {
	s := &ChatService{
		completer:    completer,
		budgeter:     budget.New(nil, 0),
		defaultModel: "gpt-3.5-turbo",
		now:          time.Now,
		log:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Title is the conversation title derived from its first user message.
func Title(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultTitle
	}
	runes := []rune(content)
	if len(runes) > TitleLength {
		return string(runes[:TitleLength])
	}
	return content
}

func firstUserContent(messages []chat.Message) string {
	for _, m := range messages {
		if m.Role == chat.RoleUser {
			return m.Content
		}
	}
	return ""
}

// Prepare fits the history into the model window and returns the messages
// that will be sent.
func (s *ChatService) Prepare(ctx context.Context, req *ChatRequest) (budget.Result, []chat.OutboundMessage, error) {
	if err := chat.ValidateMessages(req.Messages); err != nil {
		return budget.Result{}, nil, err
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	if err := s.authorize(ctx, req); err != nil {
		return budget.Result{}, nil, err
	}

	var memoryContext string
	if s.memoryEnabled && req.ConversationID != "" {
		memoryContext = s.memories.ContextFor(ctx, req.ConversationID, req.UserID)
	}
	fit := s.budgeter.Fit(req.Messages, req.Model, memoryContext)
	return fit, chat.InlineAll(fit.Messages), nil
}

// authorize rejects a conversation that belongs to another user with
// model.ErrConversationNotFound. Unknown conversations are new ones.
func (s *ChatService) authorize(ctx context.Context, req *ChatRequest) error {
	if s.recorder == nil || req.UserID == "" || req.ConversationID == "" {
		return nil
	}
	owner, err := s.recorder.Owner(ctx, req.ConversationID)
	switch {
	case errors.Is(err, model.ErrConversationNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", chat.ErrInternal, err)
	case owner != "" && owner != req.UserID:
		return model.ErrConversationNotFound
	}
	return nil
}

// Chat streams the reply through onDelta and returns the stored assistant
// message. Failing to persist a message is logged and does not fail the turn.
func (s *ChatService) Chat(ctx context.Context, req *ChatRequest, onDelta func(string) error) (*ChatResult, error) {
	fit, outbound, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	log := s.log.WithField("requestId", req.RequestID)
	if fit.Dropped > 0 {
		log.Infof("conversation %s: dropped %d messages to fit %d tokens", req.ConversationID, fit.Dropped, fit.Budget)
	}

	title := Title(firstUserContent(req.Messages))
	if last := req.Messages[len(req.Messages)-1]; last.Role == chat.RoleUser {
		if last.ID == "" {
			last.ID = uuid.New().String()
		}
		if last.Timestamp.IsZero() {
			last.Timestamp = s.now().UTC()
		}
		s.record(ctx, log, req, title, last)
	}

	reply, err := s.completer.Stream(ctx, platform.CompletionRequest{
		Model:    req.Model,
		Messages: outbound,
	}, onDelta)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrInternal, err)
	}

	answer := chat.Message{
		ID:        uuid.New().String(),
		Role:      chat.RoleAssistant,
		Content:   reply,
		Timestamp: s.now().UTC(),
		Model:     req.Model,
	}
	s.record(ctx, log, req, title, answer)

	if s.memoryEnabled && req.ConversationID != "" {
		history := make([]chat.Message, 0, len(req.Messages)+1)
		history = append(history, req.Messages...)
		history = append(history, answer)
		s.refreshMemory(log, req.ConversationID, req.UserID, history)
	}
	return &ChatResult{Message: answer, Budget: fit}, nil
}

func (s *ChatService) record(ctx context.Context, log logrus.FieldLogger, req *ChatRequest, title string, m chat.Message) {
	if s.recorder == nil || req.ConversationID == "" {
		return
	}
	if err := s.recorder.AppendMessage(ctx, req.ConversationID, req.UserID, title, m); err != nil {
		log.Warnf("failed to store %s message for conversation %s: %s", m.Role, req.ConversationID, err)
	}
}

// refreshMemory runs detached from the request so a closed client connection
// does not cancel the write.
func (s *ChatService) refreshMemory(log logrus.FieldLogger, conversationID, userID string, history []chat.Message) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), memoryWriteTimeout)
		defer cancel()
		if err := s.memories.UpdateMemory(ctx, conversationID, history, userID); err != nil {
			log.Warnf("failed to update memory for conversation %s: %s", conversationID, err)
		}
	}()
}

// Wait blocks until background memory writes have finished.
func (s *ChatService) Wait() {
	s.wg.Wait()
}
