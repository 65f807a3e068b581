package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// SignInMessage is the content of a sign-in email.
type SignInMessage struct {
	To        string
	Code      string
	MagicLink string
}

// Mailer delivers sign-in codes.
type Mailer interface {
	SendSignIn(ctx context.Context, msg SignInMessage) error
}

// LogMailer writes sign-in messages to the structured log. It stands in for
// an SMTP relay in development.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendSignIn(ctx context.Context, msg SignInMessage) error {
	m.Logger.InfoContext(ctx, "sign-in code issued",
		slog.String("to", msg.To),
		slog.String("code", msg.Code),
		slog.String("magic_link", msg.MagicLink))
	return nil
}

// MemoryMailer keeps messages in memory.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []SignInMessage
}

func (m *MemoryMailer) SendSignIn(_ context.Context, msg SignInMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Last returns the most recent message sent to email.
func (m *MemoryMailer) Last(email string) (SignInMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if strings.EqualFold(m.sent[i].To, email) {
			return m.sent[i], true
		}
	}
	return SignInMessage{}, false
}

// Count returns how many messages were sent.
func (m *MemoryMailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func magicLink(publicURL, email, code string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("code", code)
	return strings.TrimRight(publicURL, "/") + "/auth/confirm?" + q.Encode()
}
