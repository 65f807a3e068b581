// Package session carries the signed-in member through request contexts and
// fans out sign-in, sign-out and refresh notifications.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identity is the authenticated member as seen by the directory.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Session is one signed-in browser. ID is stable across token refreshes;
// TokenID is the jti of the token currently backing it.
type Session struct {
	ID         string    `json:"id"`
	TokenID    string    `json:"-"`
	Identity   Identity  `json:"user"`
	RememberMe bool      `json:"remember_me"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session injected by the auth middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// UserID returns the signed-in member's id, or uuid.Nil.
func UserID(ctx context.Context) uuid.UUID {
	if s, ok := FromContext(ctx); ok {
		return s.Identity.ID
	}
	return uuid.Nil
}
