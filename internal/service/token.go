package service

import (
	"errors"
	"fmt"
	"time"

	"memberdir/internal/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenIssuer   = "memberdir-api"
	TokenAudience = "memberdir-client"
)

// ErrInvalidToken covers every reason a bearer token is not accepted.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims carried by a session token. sid is stable across
// refreshes; jti changes with every issued token.
type Claims struct {
	Email      string `json:"email"`
	SessionID  string `json:"sid"`
	RememberMe bool   `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and parses HS256 session tokens.
type Tokens struct {
	secret      []byte
	sessionTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// NewTokens creates a token signer. sessionTTL applies to session-scoped
// sign-ins, rememberTTL when the member asked to be remembered.
func NewTokens(secret string, sessionTTL, rememberTTL time.Duration) *Tokens {
	return &Tokens{
		secret:      []byte(secret),
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

// Issue signs a token for identity. An empty sessionID starts a new session.
func (t *Tokens) Issue(identity session.Identity, sessionID string, rememberMe bool) (string, *session.Session, error) {
	if len(t.secret) == 0 {
		return "", nil, fmt.Errorf("JWT secret not configured")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := t.now()
	ttl := t.sessionTTL
	if rememberMe {
		ttl = t.rememberTTL
	}
	claims := Claims{
		Email:      identity.Email,
		SessionID:  sessionID,
		RememberMe: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID.String(),
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, sessionFromClaims(&claims), nil
}

// Parse validates signature, issuer, audience and lifetime.
func (t *Tokens) Parse(raw string) (*session.Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil || claims.ID == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return sessionFromClaims(claims), nil
}

func sessionFromClaims(c *Claims) *session.Session {
	s := &session.Session{
		ID:         c.SessionID,
		TokenID:    c.ID,
		Identity:   session.Identity{ID: uuid.MustParse(c.Subject), Email: c.Email},
		RememberMe: c.RememberMe,
	}
	if c.IssuedAt != nil {
		s.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}
