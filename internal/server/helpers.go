package server

import (
	"context"
	"errors"
	"time"

	"memberdir/internal/directory"
	"memberdir/internal/models"
	"memberdir/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const sessionCookie = "memberdir_session"

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	var writeErr *models.RemoteWriteError
	if errors.As(err, &writeErr) {
		switch writeErr.Code {
		case "23505":
			return fiber.StatusConflict
		case models.CodeNoRows:
			return fiber.StatusNotFound
		}
		return fiber.StatusBadGateway
	}

	var readErr *models.RemoteReadError
	if errors.As(err, &readErr) {
		return fiber.StatusBadGateway
	}

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case models.CodeValidation:
			return fiber.StatusBadRequest
		case models.CodeUnauthorized, models.CodeAuth:
			return fiber.StatusUnauthorized
		case models.CodeForbidden:
			return fiber.StatusForbidden
		case models.CodeNotFound:
			return fiber.StatusNotFound
		case models.CodeRateLimited:
			return fiber.StatusTooManyRequests
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

// respondError writes err with the status it maps to.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, statusFor(err), err)
}

// currentSession returns the session set by AuthRequired.
func currentSession(c *fiber.Ctx) *session.Session {
	sess, _ := c.Locals("session").(*session.Session)
	return sess
}

// controller returns the caller's directory view, creating and loading it
// when this instance has not served the session yet.
func (s *Server) controller(c *fiber.Ctx) (*directory.Controller, error) {
	sess := currentSession(c)
	if sess == nil {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
		return nil, errResponseWritten
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), readTimeout)
	defer cancel()
	return s.registry.Ensure(ctx, sess), nil
}

// parseUserID extracts a uuid route parameter. On failure it writes a 400
// JSON response and returns errResponseWritten.
func parseUserID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid user ID"))
		return uuid.Nil, errResponseWritten
	}
	return id, nil
}

// withTimeout bounds a store call issued on behalf of c.
func withTimeout(c *fiber.Ctx, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), d)
}

// setSessionCookie stores token; remember-me sessions get a persistent
// cookie, others a browser-session cookie.
func (s *Server) setSessionCookie(c *fiber.Ctx, token string, sess *session.Session) {
	cookie := &fiber.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if sess.RememberMe {
		cookie.Expires = sess.ExpiresAt
	} else {
		cookie.SessionOnly = true
	}
	c.Cookie(cookie)
}

func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
