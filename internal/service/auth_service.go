// Package service implements passwordless sign-in: one-time codes and magic
// links, the community sign-up gate, and the session tokens that back the
// directory's per-session views.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"memberdir/internal/cache"
	"memberdir/internal/middleware"
	"memberdir/internal/models"
	"memberdir/internal/observability"
	"memberdir/internal/repository"
	"memberdir/internal/session"
	"memberdir/internal/validation"

	"github.com/redis/go-redis/v9"
)

// Messages surfaced to members verbatim.
const (
	MsgSignupsNotAllowed = "Signups not allowed for otp"
	MsgInvalidCode       = "Token has expired or is invalid"
	MsgInvalidCommunity  = "Invalid community password"
	MsgTooManyRequests   = "For security purposes, you can only request this after a short wait"
)

// SendOptions controls SendMagicLink.
type SendOptions struct {
	// CreateUser registers the email when it is not known yet.
	CreateUser bool
	// RememberMe selects the long-lived token once the code is verified.
	RememberMe bool
}

// AuthResult is a signed-in session and its bearer token.
type AuthResult struct {
	Token   string           `json:"token"`
	Session *session.Session `json:"session"`
}

// AuthConfig holds the auth service's tunables.
type AuthConfig struct {
	CommunityPassword string
	PublicURL         string
	ResendLimit       int
	ResendWindow      time.Duration
}

// AuthService runs the passwordless flow and publishes session changes.
type AuthService struct {
	identities repository.IdentityRepository
	rdb        *redis.Client
	otp        *OTPStore
	tokens     *Tokens
	mailer     Mailer
	broker     *session.Broker
	cfg        AuthConfig
	now        func() time.Time
	newCode    func() (string, error)
}

// NewAuthService wires the auth flow. rdb backs token revocation and resend
// limits; otp must share it.
func NewAuthService(
	identities repository.IdentityRepository,
	rdb *redis.Client,
	otp *OTPStore,
	tokens *Tokens,
	mailer Mailer,
	broker *session.Broker,
	cfg AuthConfig,
) *AuthService {
	if cfg.ResendLimit <= 0 {
		cfg.ResendLimit = 3
	}
	if cfg.ResendWindow <= 0 {
		cfg.ResendWindow = 10 * time.Minute
	}
	return &AuthService{
		identities: identities,
		rdb:        rdb,
		otp:        otp,
		tokens:     tokens,
		mailer:     mailer,
		broker:     broker,
		cfg:        cfg,
		now:        time.Now,
		newCode:    GenerateCode,
	}
}

// Broker is where session changes are published.
func (s *AuthService) Broker() *session.Broker {
	return s.broker
}

// SendMagicLink emails a one-time code and magic link to email.
func (s *AuthService) SendMagicLink(ctx context.Context, email string, opts SendOptions) error {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return models.NewValidationError(err.Error())
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if identity == nil {
		if !opts.CreateUser {
			observability.AuthEvents.WithLabelValues("send", "unknown_user").Inc()
			return models.NewAuthError(MsgSignupsNotAllowed)
		}
		if err := s.identities.Create(ctx, &models.Identity{Email: email}); err != nil {
			return err
		}
	}

	return s.issueCode(ctx, email, opts.RememberMe)
}

// ResendCode issues a fresh code for a known email, subject to a per-email
// limit.
func (s *AuthService) ResendCode(ctx context.Context, email string, rememberMe bool) error {
	email = validation.NormalizeEmail(email)
	if s.rdb != nil {
		allowed, err := middleware.CheckRateLimit(ctx, s.rdb, "otp_resend", email, s.cfg.ResendLimit, s.cfg.ResendWindow)
		if err == nil && !allowed {
			observability.AuthEvents.WithLabelValues("resend", "rate_limited").Inc()
			return models.NewRateLimitedError(MsgTooManyRequests)
		}
	}
	return s.SendMagicLink(ctx, email, SendOptions{RememberMe: rememberMe})
}

// SignUp registers email behind the community password and sends the first
// code.
func (s *AuthService) SignUp(ctx context.Context, email, communityPassword string, rememberMe bool) error {
	if subtle.ConstantTimeCompare([]byte(communityPassword), []byte(s.cfg.CommunityPassword)) != 1 || s.cfg.CommunityPassword == "" {
		observability.AuthEvents.WithLabelValues("signup", "bad_password").Inc()
		return models.NewAuthError(MsgInvalidCommunity)
	}
	if err := s.SendMagicLink(ctx, email, SendOptions{CreateUser: true, RememberMe: rememberMe}); err != nil {
		return err
	}
	observability.AuthEvents.WithLabelValues("signup", "ok").Inc()
	return nil
}

func (s *AuthService) issueCode(ctx context.Context, email string, rememberMe bool) error {
	code, err := s.newCode()
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.otp.Save(ctx, email, code, rememberMe); err != nil {
		return models.NewInternalError(err)
	}
	msg := SignInMessage{To: email, Code: code, MagicLink: magicLink(s.cfg.PublicURL, email, code)}
	if err := s.mailer.SendSignIn(ctx, msg); err != nil {
		return models.NewInternalError(err)
	}
	observability.AuthEvents.WithLabelValues("send", "ok").Inc()
	return nil
}

// VerifyCode exchanges a code for a session token and publishes signed_in.
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) (*AuthResult, error) {
	email = validation.NormalizeEmail(email)
	if validation.ValidateOTPCode(code) != nil {
		observability.AuthEvents.WithLabelValues("verify", "rejected").Inc()
		return nil, models.NewAuthError(MsgInvalidCode)
	}

	pending, err := s.otp.Verify(ctx, email, code)
	if errors.Is(err, ErrCodeRejected) {
		observability.AuthEvents.WithLabelValues("verify", "rejected").Inc()
		return nil, models.NewAuthError(MsgInvalidCode)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, models.NewAuthError(MsgInvalidCode)
	}
	if err := s.identities.MarkSignedIn(ctx, identity.ID, s.now().UTC()); err != nil {
		return nil, err
	}

	token, sess, err := s.tokens.Issue(session.Identity{ID: identity.ID, Email: identity.Email}, "", pending.RememberMe)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.AuthEvents.WithLabelValues("verify", "ok").Inc()
	middleware.Logger.InfoContext(ctx, "member signed in",
		slog.String("user_id", identity.ID.String()),
		slog.Bool("remember_me", pending.RememberMe))
	s.broker.Publish(session.Event{Kind: session.SignedIn, Session: sess})
	return &AuthResult{Token: token, Session: sess}, nil
}

// GetSession validates token and checks it has not been signed out.
func (s *AuthService) GetSession(ctx context.Context, token string) (*session.Session, error) {
	sess, err := s.tokens.Parse(token)
	if err != nil {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	if s.rdb != nil {
		n, err := s.rdb.Exists(ctx, cache.RevokedKey(sess.TokenID)).Result()
		if err == nil && n > 0 {
			return nil, models.NewUnauthorizedError("Token has been revoked")
		}
	}
	return sess, nil
}

// SignOut revokes token until it would have expired and publishes
// signed_out.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return err
	}
	s.revoke(ctx, sess)
	observability.AuthEvents.WithLabelValues("sign_out", "ok").Inc()
	s.broker.Publish(session.Event{Kind: session.SignedOut, Session: sess})
	return nil
}

// Refresh swaps token for a new one in the same session and publishes
// token_refreshed.
func (s *AuthService) Refresh(ctx context.Context, token string) (*AuthResult, error) {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	fresh, next, err := s.tokens.Issue(sess.Identity, sess.ID, sess.RememberMe)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	s.revoke(ctx, sess)
	observability.AuthEvents.WithLabelValues("refresh", "ok").Inc()
	s.broker.Publish(session.Event{Kind: session.TokenRefreshed, Session: next})
	return &AuthResult{Token: fresh, Session: next}, nil
}

func (s *AuthService) revoke(ctx context.Context, sess *session.Session) {
	if s.rdb == nil {
		return
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.rdb.Set(ctx, cache.RevokedKey(sess.TokenID), "1", ttl).Err(); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to revoke token",
			slog.String("error", err.Error()))
	}
}
