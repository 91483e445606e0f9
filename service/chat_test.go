package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memchat/budget"
	"memchat/chat"
	"memchat/memory"
	"memchat/model"
	"memchat/platform"
)

type fakeCompleter struct {
	deltas []string
	err    error
	got    platform.CompletionRequest
}

func (f *fakeCompleter) Stream(ctx context.Context, req platform.CompletionRequest, onDelta func(string) error) (string, error) {
	f.got = req
	if f.err != nil {
		return "", f.err
	}
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return "", err
		}
	}
	return strings.Join(f.deltas, ""), nil
}

type appended struct {
	conversationID, userID, title string
	message                       chat.Message
}

type fakeRecorder struct {
	mu       sync.Mutex
	appended []appended
	owners   map[string]string
	err      error
}

func (f *fakeRecorder) Owner(ctx context.Context, conversationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.owners[conversationID]
	if !ok {
		return "", model.ErrConversationNotFound
	}
	return owner, nil
}

func (f *fakeRecorder) AppendMessage(ctx context.Context, conversationID, userID, title string, m chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, appended{conversationID, userID, title, m})
	return f.err
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newChat(completer Completer, opts ...ChatOption) *ChatService {
	logger, _ := test.NewNullLogger()
	opts = append([]ChatOption{WithChatLogger(logger), WithChatClock(func() time.Time { return fixedNow })}, opts...)
	return NewChatService(completer, opts...)
}

func collect(out *strings.Builder) func(string) error {
	return func(s string) error {
		out.WriteString(s)
		return nil
	}
}

func TestChatStreamsAndRecords(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{deltas: []string{"Hel", "lo"}}
	recorder := &fakeRecorder{}
	memories := memory.NewService(memory.NewMemStore())
	svc := newChat(completer, WithRecorder(recorder), WithMemory(memories))

	var out strings.Builder
	result, err := svc.Chat(ctx, &ChatRequest{
		ConversationID: "c1",
		UserID:         "u1",
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: "Be concise"},
			{ID: "m1", Role: chat.RoleUser, Content: "What is Docker?"},
		},
	}, collect(&out))
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "Hello", out.String())
	assert.Equal(t, "Hello", result.Message.Content)
	assert.Equal(t, chat.RoleAssistant, result.Message.Role)
	assert.Equal(t, "gpt-3.5-turbo", result.Message.Model)
	assert.NotEmpty(t, result.Message.ID)
	assert.Equal(t, fixedNow, result.Message.Timestamp)

	assert.Equal(t, "gpt-3.5-turbo", completer.got.Model)
	assert.Equal(t, []chat.OutboundMessage{
		{Role: chat.RoleSystem, Content: "Be concise"},
		{Role: chat.RoleUser, Content: "What is Docker?"},
	}, completer.got.Messages)

	require.Len(t, recorder.appended, 2)
	assert.Equal(t, "m1", recorder.appended[0].message.ID)
	assert.Equal(t, "What is Docker?", recorder.appended[0].title)
	assert.Equal(t, "u1", recorder.appended[0].userID)
	assert.Equal(t, fixedNow, recorder.appended[0].message.Timestamp)
	assert.Equal(t, "Hello", recorder.appended[1].message.Content)

	m, err := memories.GetMemory(ctx, "c1", "")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "u1", m.UserID)
	assert.Contains(t, m.KeyPoints, "What is Docker?")
}

func TestChatInjectsMemoryContext(t *testing.T) {
	ctx := context.Background()
	memories := memory.NewService(memory.NewMemStore())
	_, err := memories.CreateMemory(ctx, "c1", []chat.Message{{Role: chat.RoleUser, Content: "Tell me about Redis"}}, "")
	require.NoError(t, err)

	completer := &fakeCompleter{deltas: []string{"ok"}}
	svc := newChat(completer, WithMemory(memories))
	_, err = svc.Chat(ctx, &ChatRequest{
		ConversationID: "c1",
		Model:          "gpt-4",
		Messages:       []chat.Message{{Role: chat.RoleUser, Content: "And eviction?"}},
	}, collect(&strings.Builder{}))
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, completer.got.Messages, 2)
	assert.Equal(t, chat.RoleSystem, completer.got.Messages[0].Role)
	assert.True(t, strings.HasPrefix(completer.got.Messages[0].Content, "Previous conversation context: "))
	assert.Equal(t, "gpt-4", completer.got.Model)
}

func TestChatRejectsConversationOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	memories := memory.NewService(memory.NewMemStore())
	_, err := memories.CreateMemory(ctx, "c1", []chat.Message{{Role: chat.RoleUser, Content: "alice secret: password is hunter2?"}}, "alice")
	require.NoError(t, err)

	completer := &fakeCompleter{deltas: []string{"x"}}
	recorder := &fakeRecorder{owners: map[string]string{"c1": "alice"}}
	svc := newChat(completer, WithRecorder(recorder), WithMemory(memories))

	req := &ChatRequest{
		ConversationID: "c1",
		UserID:         "bob",
		Messages:       []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
	}
	_, err = svc.Chat(ctx, req, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, model.ErrConversationNotFound)
	_, _, err = svc.Prepare(ctx, req)
	assert.ErrorIs(t, err, model.ErrConversationNotFound)
	svc.Wait()

	assert.Empty(t, completer.got.Messages, "completion is not called")
	assert.Empty(t, recorder.appended)
	m, err := memories.GetMemory(ctx, "c1", "alice")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Contains(t, m.Summary, "hunter2")

	req.UserID = "alice"
	_, err = svc.Chat(ctx, req, collect(&strings.Builder{}))
	require.NoError(t, err)
	svc.Wait()
	require.NotEmpty(t, completer.got.Messages)
	assert.Contains(t, completer.got.Messages[0].Content, "hunter2")
}

func TestChatWithoutConversationSkipsPersistence(t *testing.T) {
	recorder := &fakeRecorder{}
	memories := memory.NewService(memory.NewMemStore())
	svc := newChat(&fakeCompleter{deltas: []string{"x"}}, WithRecorder(recorder), WithMemory(memories))

	_, err := svc.Chat(context.Background(), &ChatRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
	}, collect(&strings.Builder{}))
	require.NoError(t, err)
	svc.Wait()
	assert.Empty(t, recorder.appended)
}

func TestChatValidation(t *testing.T) {
	completer := &fakeCompleter{}
	svc := newChat(completer)

	_, err := svc.Chat(context.Background(), &ChatRequest{}, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, chat.ErrValidation)

	_, err = svc.Chat(context.Background(), &ChatRequest{Messages: []chat.Message{{Role: "robot", Content: "x"}}}, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, chat.ErrValidation)
	assert.Empty(t, completer.got.Messages, "completion is not called")
}

func TestChatCompletionFailure(t *testing.T) {
	boom := errors.New("upstream 502")
	recorder := &fakeRecorder{}
	memories := memory.NewService(memory.NewMemStore())
	svc := newChat(&fakeCompleter{err: boom}, WithRecorder(recorder), WithMemory(memories))

	_, err := svc.Chat(context.Background(), &ChatRequest{
		ConversationID: "c1",
		Messages:       []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
	}, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, chat.ErrInternal)
	assert.ErrorIs(t, err, boom)
	svc.Wait()

	require.Len(t, recorder.appended, 1, "the user message is kept")
	m, err := memories.GetMemory(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Nil(t, m, "no memory without a reply")
}

func TestChatRecorderFailureIsNotFatal(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	logger, hook := test.NewNullLogger()
	svc := NewChatService(&fakeCompleter{deltas: []string{"fine"}}, WithRecorder(recorder), WithChatLogger(logger))

	result, err := svc.Chat(context.Background(), &ChatRequest{
		ConversationID: "c1",
		Messages:       []chat.Message{{Role: chat.RoleUser, Content: "hi"}},
	}, collect(&strings.Builder{}))
	require.NoError(t, err)
	assert.Equal(t, "fine", result.Message.Content)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestPrepareTruncatesHistory(t *testing.T) {
	limits := budget.Limits{"tiny": 100}
	svc := newChat(&fakeCompleter{}, WithBudgeter(budget.New(limits, 0.5)), WithDefaultModel("tiny"))

	var messages []chat.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: chat.RoleUser, Content: strings.Repeat("x", 40)})
	}
	req := &ChatRequest{Messages: messages}
	fit, outbound, err := svc.Prepare(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "tiny", req.Model)
	assert.Equal(t, 50, fit.Budget)
	assert.Equal(t, 5, len(outbound))
	assert.Equal(t, 5, fit.Dropped)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, Title("  "))
	assert.Equal(t, "short", Title("short"))
	assert.Equal(t, strings.Repeat("é", TitleLength), Title(strings.Repeat("é", 80)))
}
