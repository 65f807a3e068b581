package server

import (
	"memberdir/internal/directory"
	"memberdir/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// GetDirectory handles GET /api/directory
// @Summary Current directory view
// @Description Returns the caller's derived profile list, filters, skills and form state
// @Tags directory
// @Produce json
// @Security BearerAuth
// @Success 200 {object} directory.View
// @Router /directory [get]
func (s *Server) GetDirectory(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}
	return c.JSON(ctrl.View())
}

// UpdateQuery handles PATCH /api/directory/query
// @Summary Change search, category, facet or sort
// @Description Omitted fields keep their current value. Re-derives without refetching.
// @Tags directory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{search=string,facet=string,category=string,sort=string} true "Query changes"
// @Success 200 {object} directory.View
// @Router /directory/query [patch]
func (s *Server) UpdateQuery(c *fiber.Ctx) error {
	var req struct {
		Search   *string `json:"search"`
		Facet    *string `json:"facet"`
		Category *string `json:"category"`
		Sort     *string `json:"sort"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}

	q := ctrl.View().Query
	search, facet, category, sortKey := q.Search, string(q.Facet), q.Category, string(q.Sort)
	if req.Search != nil {
		search = *req.Search
	}
	if req.Facet != nil {
		facet = *req.Facet
	}
	if req.Category != nil {
		category = *req.Category
	}
	if req.Sort != nil {
		sortKey = *req.Sort
	}
	return c.JSON(ctrl.SetQuery(directory.ParseQuery(search, facet, category, sortKey)))
}

// ReloadDirectory handles POST /api/directory/reload
// @Summary Refetch profiles and skills
// @Tags directory
// @Produce json
// @Security BearerAuth
// @Success 200 {object} directory.View
// @Router /directory/reload [post]
func (s *Server) ReloadDirectory(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}
	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()
	return c.JSON(ctrl.Load(ctx))
}

// GetDirectoryProfile handles GET /api/directory/profiles/:userId
// @Summary One profile from the caller's view
// @Tags directory
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} models.Profile
// @Failure 404 {object} models.ErrorResponse
// @Router /directory/profiles/{userId} [get]
func (s *Server) GetDirectoryProfile(c *fiber.Ctx) error {
	userID, err := parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}
	p, ok := ctrl.Profile(userID)
	if !ok {
		return respondError(c, models.NewNotFoundError("Profile", userID))
	}
	return c.JSON(p)
}

// OpenForm handles POST /api/directory/form
// @Summary Open the add or edit form
// @Description mode=create opens an empty form; mode=edit prefills the caller's own profile
// @Tags directory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{mode=string,user_id=string} true "Form request"
// @Success 200 {object} directory.FormState
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /directory/form [post]
func (s *Server) OpenForm(c *fiber.Ctx) error {
	var req struct {
		Mode   directory.FormMode `json:"mode"`
		UserID uuid.UUID          `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}

	switch req.Mode {
	case directory.FormCreate:
		return c.JSON(ctrl.OpenCreateForm())
	case directory.FormEdit:
		form, err := ctrl.OpenEditForm(req.UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(form)
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("mode must be create or edit"))
	}
}

// CloseForm handles DELETE /api/directory/form
// @Summary Dismiss the form
// @Tags directory
// @Produce json
// @Security BearerAuth
// @Success 200 {object} directory.View
// @Router /directory/form [delete]
func (s *Server) CloseForm(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}
	ctrl.CloseForm()
	return c.JSON(ctrl.View())
}

// SubmitForm handles POST /api/directory/form/submit
// @Summary Save the open form
// @Description Creates or updates the caller's profile. The form closes before the store is called.
// @Tags directory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body directory.ProfileForm true "Profile form"
// @Success 200 {object} object{kind=string,profile=models.Profile,view=directory.View}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /directory/form/submit [post]
func (s *Server) SubmitForm(c *fiber.Ctx) error {
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
	res := ctrl.Submit(ctx, form)
	return respondMutation(c, ctrl, res, fiber.StatusOK)
}

// DeleteProfile handles DELETE /api/directory/profiles/:userId
// @Summary Delete the caller's profile
// @Tags directory
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} object{kind=string,view=directory.View}
// @Failure 403 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /directory/profiles/{userId} [delete]
func (s *Server) DeleteProfile(c *fiber.Ctx) error {
	userID, err := parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	ctrl, err := s.controller(c)
	if err != nil {
		return nil
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()
	res := ctrl.Delete(ctx, userID)
	return respondMutation(c, ctrl, res, fiber.StatusOK)
}

// respondMutation writes the mutation outcome together with the reloaded view.
func respondMutation(c *fiber.Ctx, ctrl *directory.Controller, res directory.MutationResult, okStatus int) error {
	if res.Err != nil {
		return respondError(c, res.Err)
	}
	return c.Status(okStatus).JSON(fiber.Map{
		"kind":    res.Kind,
		"profile": res.Profile,
		"view":    ctrl.View(),
	})
}
