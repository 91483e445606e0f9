package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"system", "user", "assistant", " User "} {
		_, err := ParseRole(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseRole("tool")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateMessages(t *testing.T) {
	err := ValidateMessages(nil)
	assert.ErrorIs(t, err, ErrValidation)

	err = ValidateMessages([]Message{{ID: "1", Role: RoleUser}})
	assert.ErrorIs(t, err, ErrValidation)

	err = ValidateMessages([]Message{{ID: "1", Role: RoleUser, Attachments: []FileAttachment{{Name: "a.png"}}}})
	assert.NoError(t, err)

	err = ValidateMessages([]Message{{ID: "1", Role: "bot", Content: "hi"}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInlineAttachments(t *testing.T) {
	m := Message{
		Role:    RoleUser,
		Content: "look",
		Attachments: []FileAttachment{
			{Name: "notes.txt", MimeType: "text/plain", TextContent: "hello"},
			{Name: "cat.png", MimeType: "image/png"},
			{Name: "doc.pdf", MimeType: "application/pdf"},
		},
	}

	out := Inline(m)
	assert.Equal(t, RoleUser, out.Role)
	assert.Equal(t, "look"+
		"\n\n--- File: notes.txt ---\nhello\n--- End of notes.txt ---"+
		"\n\n[Image attached: cat.png - Please analyze this image]"+
		"\n\n[File attached: doc.pdf (application/pdf) - Please help me with this file]", out.Content)
}

func TestInlineHTMLAttachment(t *testing.T) {
	m := Message{
		Role:        RoleUser,
		Attachments: []FileAttachment{{Name: "page.html", MimeType: "text/html", TextContent: "<h1>Title</h1><p>Body</p>"}},
	}

	out := Inline(m)
	assert.Contains(t, out.Content, "--- File: page.html ---")
	assert.Contains(t, out.Content, "# Title")
	assert.False(t, strings.Contains(out.Content, "<h1>"))
}

func TestText(t *testing.T) {
	assert.Equal(t, "a b", Text([]Message{{Content: "a"}, {Content: "b"}}))
	assert.Equal(t, "", Text(nil))
}
