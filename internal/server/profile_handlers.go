package server

import (
	"memberdir/internal/directory"
	"memberdir/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/profile/me
// @Summary The caller's own profile
// @Description Read straight from the store, including hidden profiles
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Profile
// @Failure 404 {object} models.ErrorResponse
// @Router /profile/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	sess := currentSession(c)
	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	p, err := s.profileRepo.GetByUserID(ctx, sess.Identity.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// GetSetupStatus handles GET /api/profile/setup
// @Summary Whether the caller still has to create a profile
// @Tags profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{needs_setup=bool,email=string}
// @Router /profile/setup [get]
func (s *Server) GetSetupStatus(c *fiber.Ctx) error {
	sess := currentSession(c)
	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	has, err := s.store.HasProfile(ctx, sess.Identity.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"needs_setup": !has,
		"email":       sess.Identity.Email,
	})
}

// CompleteSetup handles POST /api/profile/setup
// @Summary Create the caller's first profile
// @Description contact_email is always the sign-in address
// @Tags profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body directory.ProfileForm true "Setup form"
// @Success 201 {object} object{kind=string,profile=models.Profile,view=directory.View}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profile/setup [post]
func (s *Server) CompleteSetup(c *fiber.Ctx) error {
	var form directory.ProfileForm
	if err := c.BodyParser(&form); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()
	res := ctrl.CompleteSetup(ctx, form)
	return respondMutation(c, ctrl, res, fiber.StatusCreated)
}

// GetSkills handles GET /api/skills
// @Summary Skills taxonomy
// @Tags skills
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Skill
// @Router /skills [get]
func (s *Server) GetSkills(c *fiber.Ctx) error {
	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	skills, err := s.skillRepo.List(ctx)
	if err != nil {
		return respondError(c, &models.RemoteReadError{Op: "list skills", Err: err})
	}
	return c.JSON(skills)
}

// SuggestSkills handles GET /api/skills/suggest
// @Summary Autocomplete skills
// @Tags skills
// @Produce json
// @Security BearerAuth
// @Param q query string false "Prefix or fragment"
// @Param limit query int false "Max results (default 10)"
// @Success 200 {array} models.Skill
// @Router /skills/suggest [get]
func (s *Server) SuggestSkills(c *fiber.Ctx) error {
	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	skills, err := s.skillRepo.Suggest(ctx, c.Query("q"), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, &models.RemoteReadError{Op: "suggest skills", Err: err})
	}
	return c.JSON(skills)
}

// GetCategories handles GET /api/categories
// @Summary Opportunity categories
// @Tags directory
// @Produce json
// @Param q query string false "Label filter"
// @Success 200 {array} models.Category
// @Router /categories [get]
func (s *Server) GetCategories(c *fiber.Ctx) error {
	return c.JSON(models.SearchCategories(c.Query("q")))
}
