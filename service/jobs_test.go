package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memchat/chat"
	"memchat/memory"
	"memchat/model"
)

type fakeStale struct {
	stale    []model.Conversation
	messages map[string][]chat.Message
}

func (f *fakeStale) StaleForMemory(ctx context.Context, limit int) ([]model.Conversation, error) {
	return f.stale, nil
}

func (f *fakeStale) Messages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	if m, ok := f.messages[conversationID]; ok {
		return m, nil
	}
	return nil, errors.New("gone")
}

func TestMemoryReconciler(t *testing.T) {
	ctx := context.Background()
	memories := memory.NewService(memory.NewMemStore())
	source := &fakeStale{
		stale: []model.Conversation{{ID: "a", UserID: "u1"}, {ID: "b"}, {ID: "empty"}},
		messages: map[string][]chat.Message{
			"a":     {{Role: chat.RoleUser, Content: "Why Kubernetes?"}, {Role: chat.RoleAssistant, Content: "Scale"}},
			"empty": {},
		},
	}

	r := &MemoryReconciler{Conversations: source, Memories: memories}
	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, err := memories.GetMemory(ctx, "a", "")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "u1", m.UserID)
	assert.Contains(t, m.Entities, "Kubernetes")
}

type sentMail struct {
	to         []string
	text, html string
}

type fakeMailer struct {
	sent []sentMail
}

func (f *fakeMailer) Send(to []string, subject string, text, html []byte) error {
	f.sent = append(f.sent, sentMail{to, string(text), string(html)})
	return nil
}

func TestDigestService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	store := memory.NewMemStore()
	require.NoError(t, store.Upsert(ctx, &memory.ConversationMemory{
		ConversationID: "recent", UserID: "1", Summary: "Caching with Redis",
		KeyPoints: []string{"How do I expire keys?"}, Entities: []string{"Redis"},
		UpdatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.Upsert(ctx, &memory.ConversationMemory{
		ConversationID: "old", UserID: "1", Summary: "Old news", UpdatedAt: now.Add(-72 * time.Hour),
	}))

	mailer := &fakeMailer{}
	digest := NewDigestService(store, mailer)
	digest.Now = func() time.Time { return now }
	digest.Recipients = func() ([]model.User, error) {
		return []model.User{{ID: 1, Email: "ada@example.com"}, {ID: 2, Email: "bob@example.com"}}, nil
	}

	n, err := digest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, mailer.sent, 1)
	mail := mailer.sent[0]
	assert.Equal(t, []string{"ada@example.com"}, mail.to)
	assert.Contains(t, mail.text, "## Caching with Redis")
	assert.NotContains(t, mail.text, "Old news")
	assert.Contains(t, mail.html, "<h2>Caching with Redis</h2>")
	assert.Contains(t, mail.html, "<li>How do I expire keys?</li>")
	assert.Contains(t, mail.html, "<em>Entities: Redis</em>")
}

func TestTranscript(t *testing.T) {
	c := &model.Conversation{ID: "c1", Title: "Plans", Messages: []model.Message{
		model.NewMessage("c1", chat.Message{Role: chat.RoleUser, Content: "Hi <script>alert(1)</script>", Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}),
		model.NewMessage("c1", chat.Message{Role: chat.RoleAssistant, Content: "**Hello**", Model: "gpt-4"}),
	}}

	md := TranscriptMarkdown(c)
	assert.Contains(t, md, "# Plans\n\n")
	assert.Contains(t, md, "**User** _2024-05-01 12:00_")
	assert.Contains(t, md, "**Assistant** (gpt-4)")

	html := string(TranscriptHTML(c))
	assert.Contains(t, html, "<title>Plans</title>")
	assert.Contains(t, html, "<strong>Hello</strong>")
	assert.NotContains(t, html, "<script>")
}
