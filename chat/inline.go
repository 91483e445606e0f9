package chat

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// OutboundMessage is the {role, content} shape sent to the completion service.
type OutboundMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AttachmentText returns the text that stands in for an attachment inside a
// message: its extracted text wrapped in file markers, or a placeholder.
func AttachmentText(f FileAttachment) string {
	if text := attachmentBody(f); text != "" {
		return fmt.Sprintf("\n\n--- File: %s ---\n%s\n--- End of %s ---", f.Name, text, f.Name)
	}
	if f.IsImage() {
		return fmt.Sprintf("\n\n[Image attached: %s - Please analyze this image]", f.Name)
	}
	return fmt.Sprintf("\n\n[File attached: %s (%s) - Please help me with this file]", f.Name, f.MimeType)
}

// attachmentBody converts html text to markdown so the model sees structure
// rather than tags. Conversion failures fall back to the raw text.
func attachmentBody(f FileAttachment) string {
	if f.TextContent == "" {
		return ""
	}
	if strings.HasPrefix(f.MimeType, "text/html") {
		if md, err := htmltomarkdown.ConvertString(f.TextContent); err == nil && strings.TrimSpace(md) != "" {
			return md
		}
	}
	return f.TextContent
}

// Inline renders a message for the completion service with all attachments
// appended to its content in order.
func Inline(m Message) OutboundMessage {
	if len(m.Attachments) == 0 {
		return OutboundMessage{Role: m.Role, Content: m.Content}
	}
	var sb strings.Builder
	sb.WriteString(m.Content)
	for _, f := range m.Attachments {
		sb.WriteString(AttachmentText(f))
	}
	return OutboundMessage{Role: m.Role, Content: sb.String()}
}

func InlineAll(messages []Message) []OutboundMessage {
	out := make([]OutboundMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, Inline(m))
	}
	return out
}
