package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"memberdir/internal/cache"
	"memberdir/internal/models"
	"memberdir/internal/service"
	"memberdir/internal/session"

	"github.com/gofiber/fiber/v2"
)

const codeSentMessage = "Check your email for a sign-in code"

type emailRequest struct {
	Email      string `json:"email"`
	RememberMe bool   `json:"remember_me"`
}

// Signup handles POST /api/auth/signup
// @Summary Join the directory
// @Description Registers an email behind the community password and sends the first sign-in code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,community_password=string,remember_me=bool} true "Signup request"
// @Success 202 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Email             string `json:"email"`
		CommunityPassword string `json:"community_password"`
		RememberMe        bool   `json:"remember_me"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()
	if err := s.auth.SignUp(ctx, req.Email, req.CommunityPassword, req.RememberMe); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": codeSentMessage})
}

// SendCode handles POST /api/auth/otp
// @Summary Request a sign-in code
// @Description Emails a one-time code and magic link to a registered member
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,remember_me=bool} true "Sign-in request"
// @Success 202 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/otp [post]
func (s *Server) SendCode(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()
	if err := s.auth.SendMagicLink(ctx, req.Email, service.SendOptions{RememberMe: req.RememberMe}); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": codeSentMessage})
}

// ResendCode handles POST /api/auth/otp/resend
// @Summary Resend a sign-in code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,remember_me=bool} true "Resend request"
// @Success 202 {object} object{message=string}
// @Failure 429 {object} models.ErrorResponse
// @Router /auth/otp/resend [post]
func (s *Server) ResendCode(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()
	if err := s.auth.ResendCode(ctx, req.Email, req.RememberMe); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": codeSentMessage})
}

// VerifyCode handles POST /api/auth/otp/verify
// @Summary Exchange a sign-in code for a session
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,code=string} true "Verification request"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/otp/verify [post]
func (s *Server) VerifyCode(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()
	res, err := s.auth.VerifyCode(ctx, req.Email, req.Code)
	if err != nil {
		return respondError(c, err)
	}

	s.setSessionCookie(c, res.Token, res.Session)
	return c.JSON(fiber.Map{
		"token":       res.Token,
		"session":     res.Session,
		"needs_setup": s.needsSetup(ctx, res.Session),
	})
}

// GetSession handles GET /api/auth/session
// @Summary Current session
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} session.Session
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/session [get]
func (s *Server) GetSession(c *fiber.Ctx) error {
	return c.JSON(currentSession(c))
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh the session token
// @Description Issues a new token for the same session and revokes the old one
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	token := tokenFromRequest(c)
	if token == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}

	res, err := s.auth.Refresh(c.UserContext(), token)
	if err != nil {
		return respondError(c, err)
	}
	s.setSessionCookie(c, res.Token, res.Session)
	return c.JSON(res)
}

// Logout handles POST /api/auth/logout
// @Summary Sign out
// @Description Revokes the token and discards the session's directory view
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	if token := tokenFromRequest(c); token != "" {
		// An already invalid token still signs the browser out.
		_ = s.auth.SignOut(c.UserContext(), token)
	}
	s.clearSessionCookie(c)
	return c.JSON(fiber.Map{"message": "Signed out"})
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a WebSocket ticket
// @Description Returns a single-use ticket valid for 30 seconds, passed as ?ticket= on /api/ws
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("redis unavailable")))
	}
	token, _ := c.Locals("token").(string)

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	ticket := hex.EncodeToString(buf)

	if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket), token, cache.WSTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// redeemWSTicket consumes ticket and returns the token it stands for.
func (s *Server) redeemWSTicket(ctx context.Context, ticket string) (string, error) {
	if s.redis == nil {
		return "", fmt.Errorf("redis unavailable")
	}
	return s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
}

// needsSetup reports whether the member has yet to create a profile.
func (s *Server) needsSetup(ctx context.Context, sess *session.Session) bool {
	has, err := s.profileRepo.HasProfile(ctx, sess.Identity.ID)
	return err == nil && !has
}
