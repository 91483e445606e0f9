package chat

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts exactly the three conversation roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// FileAttachment is the metadata of a user supplied file. TextContent is empty
// when the file format has no extractable text.
type FileAttachment struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size"`
	MimeType    string `json:"type"`
	URL         string `json:"url"`
	TextContent string `json:"textContent,omitempty"`
}

func (f FileAttachment) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

type Message struct {
	ID          string           `json:"id"`
	Role        Role             `json:"role"`
	Content     string           `json:"content"`
	Timestamp   time.Time        `json:"timestamp"`
	Attachments []FileAttachment `json:"attachments,omitempty"`
	Model       string           `json:"model,omitempty"`
}

// Validate checks the shape of a single inbound message.
func (m Message) Validate() error {
	if _, err := ParseRole(string(m.Role)); err != nil {
		return err
	}
	if m.Content == "" && len(m.Attachments) == 0 {
		return fmt.Errorf("%w: message %q has neither content nor attachments", ErrValidation, m.ID)
	}
	return nil
}

// ValidateMessages rejects an empty history or any malformed message.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages are required", ErrValidation)
	}
	for _, m := range messages {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Text joins the content of all messages with single spaces.
func Text(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}
