package service

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"memchat/chat"
	"memchat/model"
)

var roleLabels = map[chat.Role]string{
	chat.RoleSystem:    "System",
	chat.RoleUser:      "User",
	chat.RoleAssistant: "Assistant",
}

// TranscriptMarkdown renders a conversation as a markdown document.
func TranscriptMarkdown(c *model.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	for _, row := range c.Messages {
		m := row.ToChat()
		label := roleLabels[m.Role]
		if label == "" {
			label = string(m.Role)
		}
		fmt.Fprintf(&b, "**%s**", label)
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&b, " _%s_", m.Timestamp.UTC().Format("2006-01-02 15:04"))
		}
		if m.Model != "" {
			fmt.Fprintf(&b, " (%s)", m.Model)
		}
		b.WriteString("\n\n")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
		for _, f := range m.Attachments {
			fmt.Fprintf(&b, "- attachment: %s (%s)\n", f.Name, f.MimeType)
		}
		if len(m.Attachments) > 0 {
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// TranscriptHTML renders the transcript as a complete HTML page. Raw HTML in
// message content is dropped.
func TranscriptHTML(c *model.Conversation) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: c.Title,
		Flags: html.CommonFlags | html.SkipHTML | html.CompletePage | html.HrefTargetBlank,
	})
	return markdown.ToHTML([]byte(TranscriptMarkdown(c)), p, renderer)
}
