package service

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/yuin/goldmark"

	"memchat/memory"
	"memchat/model"
	"memchat/platform"
)

const DigestWindow = 24 * time.Hour

type Mailer interface {
	Send(to []string, subject string, text, html []byte) error
}

// SMTPMailer 通过 SMTP 发送邮件
type SMTPMailer struct {
	Config platform.SMTPConfig
}

func (m *SMTPMailer) Send(to []string, subject string, text, html []byte) error {
	e := email.NewEmail()
	e.From = m.Config.From
	e.To = to
	e.Subject = subject
	e.Text = text
	e.HTML = html

	var auth smtp.Auth
	if m.Config.User != "" {
		auth = smtp.PlainAuth("", m.Config.User, m.Config.Password, m.Config.Host)
	}
	return e.Send(m.Config.Addr(), auth)
}

type RecentMemories interface {
	UpdatedSince(ctx context.Context, userID string, since time.Time) ([]memory.ConversationMemory, error)
}

// DigestService mails every subscribed user the memories that changed during
// the last day.
type DigestService struct {
	Memories   RecentMemories
	Recipients func() ([]model.User, error)
	Mailer     Mailer
	Now        func() time.Time
	md         goldmark.Markdown
}

func NewDigestService(memories RecentMemories, mailer Mailer) *DigestService {
	return &DigestService{
		Memories:   memories,
		Recipients: model.DigestRecipients,
		Mailer:     mailer,
		Now:        time.Now,
		md:         goldmark.New(),
	}
}

// DigestMarkdown lists the memories as a markdown document.
func DigestMarkdown(memories []memory.ConversationMemory) string {
	var b strings.Builder
	b.WriteString("# Your conversations today\n\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "## %s\n\n", m.Summary)
		for _, p := range m.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		if len(m.KeyPoints) > 0 {
			b.WriteString("\n")
		}
		if len(m.Entities) > 0 {
			fmt.Fprintf(&b, "_Entities: %s_\n\n", strings.Join(m.Entities, ", "))
		}
	}
	return b.String()
}

func (s *DigestService) render(memories []memory.ConversationMemory) ([]byte, []byte, error) {
	md := DigestMarkdown(memories)
	if s.md == nil {
		s.md = goldmark.New()
	}
	var html bytes.Buffer
	if err := s.md.Convert([]byte(md), &html); err != nil {
		return nil, nil, err
	}
	return []byte(md), html.Bytes(), nil
}

// Run sends the digests and returns how many mails went out. A failure for one
// user does not stop the others.
func (s *DigestService) Run(ctx context.Context) (int, error) {
	logger.Infof("[%s] Start scheduled task MemoryDigest", "scheduled task")
	users, err := s.Recipients()
	if err != nil {
		logger.Warnf("[%s] load recipients error, %s", "scheduled task", err)
		return 0, err
	}

	since := s.Now().UTC().Add(-DigestWindow)
	sent := 0
	for _, u := range users {
		memories, err := s.Memories.UpdatedSince(ctx, u.Key(), since)
		if err != nil {
			logger.Warnf("[%s] load memories of user %d error, %s", "scheduled task", u.ID, err)
			continue
		}
		if len(memories) == 0 {
			continue
		}
		text, html, err := s.render(memories)
		if err != nil {
			logger.Warnf("[%s] render digest of user %d error, %s", "scheduled task", u.ID, err)
			continue
		}
		if err := s.Mailer.Send([]string{u.Email}, "Your conversation digest", text, html); err != nil {
			logger.Warnf("[%s] send digest to user %d error, %s", "scheduled task", u.ID, err)
			continue
		}
		sent++
	}
	logger.Infof("[%s] Finished scheduled task MemoryDigest, %d mails sent", "scheduled task", sent)
	return sent, nil
}
