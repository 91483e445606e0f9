package memory

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"memchat/chat"
)

const (
	DefaultSummaryPrefixLength  = 100
	DefaultMaxSummaryLength     = 400
	DefaultMaxQuestions         = 5
	DefaultMaxCodeTopics        = 3
	DefaultMaxKeyPointLength    = 200
	DefaultMaxMatchesPerPattern = 10

	// NoUserMessagesSummary is the summary of a history without user turns.
	NoUserMessagesSummary = "No user messages"
	// FallbackCodeLanguage names a fenced block that carries no language tag.
	FallbackCodeLanguage = "code"

	codeFence = "```"
)

// DefaultTopics is the vocabulary searched for the summary's topic list.
var DefaultTopics = []string{
	"programming", "coding", "development", "web development", "mobile development",
	"database", "api", "frontend", "backend", "fullstack",
	"javascript", "typescript", "python", "java", "react", "vue", "angular",
	"machine learning", "ai", "data science", "algorithms",
	"design", "ui", "ux", "css", "html",
	"deployment", "devops", "cloud", "aws", "azure", "gcp",
}

// DeriveConfig bounds the size of a derived memory.
type DeriveConfig struct {
	SummaryPrefixLength  int
	MaxSummaryLength     int
	MaxQuestions         int
	MaxCodeTopics        int
	MaxKeyPointLength    int
	MaxMatchesPerPattern int
	Topics               []string
}

func DefaultDeriveConfig() DeriveConfig {
	return DeriveConfig{
		SummaryPrefixLength:  DefaultSummaryPrefixLength,
		MaxSummaryLength:     DefaultMaxSummaryLength,
		MaxQuestions:         DefaultMaxQuestions,
		MaxCodeTopics:        DefaultMaxCodeTopics,
		MaxKeyPointLength:    DefaultMaxKeyPointLength,
		MaxMatchesPerPattern: DefaultMaxMatchesPerPattern,
		Topics:               DefaultTopics,
	}
}

// Digest is the content part of a memory record.
type Digest struct {
	Summary   string
	KeyPoints []string
	Entities  []string
}

// Deriver computes digests. It holds no state besides its configuration, so
// the same messages always produce the same digest.
type Deriver struct {
	cfg DeriveConfig
	md  goldmark.Markdown
}

func NewDeriver(cfg DeriveConfig) *Deriver {
	def := DefaultDeriveConfig()
	if cfg.SummaryPrefixLength <= 0 {
		cfg.SummaryPrefixLength = def.SummaryPrefixLength
	}
	if cfg.MaxSummaryLength <= 0 {
		cfg.MaxSummaryLength = def.MaxSummaryLength
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = def.MaxQuestions
	}
	if cfg.MaxCodeTopics <= 0 {
		cfg.MaxCodeTopics = def.MaxCodeTopics
	}
	if cfg.MaxKeyPointLength <= 0 {
		cfg.MaxKeyPointLength = def.MaxKeyPointLength
	}
	if cfg.MaxMatchesPerPattern <= 0 {
		cfg.MaxMatchesPerPattern = def.MaxMatchesPerPattern
	}
	if cfg.Topics == nil {
		cfg.Topics = def.Topics
	}
	return &Deriver{cfg: cfg, md: goldmark.New()}
}

func (d *Deriver) Derive(messages []chat.Message) Digest {
	return Digest{
		Summary:   d.Summary(messages),
		KeyPoints: d.KeyPoints(messages),
		Entities:  ExtractEntities(chat.Text(messages), d.cfg.MaxMatchesPerPattern),
	}
}

// Summary opens with the first user message and lists the known topics
// mentioned anywhere in the conversation.
func (d *Deriver) Summary(messages []chat.Message) string {
	var first *chat.Message
	for i := range messages {
		if messages[i].Role == chat.RoleUser {
			first = &messages[i]
			break
		}
	}
	if first == nil {
		return NoUserMessagesSummary
	}

	summary := fmt.Sprintf("Conversation started with: \"%s\".", truncate(first.Content, d.cfg.SummaryPrefixLength))
	if topics := d.Topics(messages); len(topics) > 0 {
		summary += " Topics discussed: " + strings.Join(topics, ", ") + "."
	}
	return truncate(summary, d.cfg.MaxSummaryLength)
}

// Topics returns the configured topics occurring in the conversation text,
// matched as case-insensitive substrings, in vocabulary order.
func (d *Deriver) Topics(messages []chat.Message) []string {
	body := strings.ToLower(chat.Text(messages))
	var out []string
	for _, topic := range d.cfg.Topics {
		if strings.Contains(body, strings.ToLower(topic)) {
			out = append(out, topic)
		}
	}
	return out
}

// KeyPoints lists the questions asked by the user followed by one entry per
// message that carries a fenced code block.
func (d *Deriver) KeyPoints(messages []chat.Message) []string {
	var questions, code []string
	for _, m := range messages {
		if m.Role == chat.RoleUser && len(questions) < d.cfg.MaxQuestions {
			if q, ok := question(m.Content); ok {
				questions = append(questions, truncate(q, d.cfg.MaxKeyPointLength))
			}
		}
		if len(code) < d.cfg.MaxCodeTopics && strings.Contains(m.Content, codeFence) {
			code = append(code, "Code discussion: "+d.CodeLanguage(m.Content))
		}
	}
	return append(questions, code...)
}

// question returns content up to and including its first question mark.
func question(content string) (string, bool) {
	i := strings.IndexByte(content, '?')
	if i < 0 {
		return "", false
	}
	q := strings.TrimSpace(content[:i])
	if q == "" {
		return "", false
	}
	return q + "?", true
}

var fenceLanguagePattern = regexp.MustCompile("```(\\w+)")

// CodeLanguage reads the info string of the first fenced code block. Fences
// that markdown does not recognise as blocks, such as ones in the middle of a
// line, fall back to the word right after the marker.
func (d *Deriver) CodeLanguage(content string) string {
	src := []byte(content)
	doc := d.md.Parser().Parse(text.NewReader(src))

	lang := ""
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if fb, ok := n.(*ast.FencedCodeBlock); ok {
			lang = string(fb.Language(src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if lang != "" {
		return lang
	}
	// a closing fence inside a paragraph opens an untagged block
	if m := fenceLanguagePattern.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return FallbackCodeLanguage
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
