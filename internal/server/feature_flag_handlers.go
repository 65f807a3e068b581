package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags handles GET /api/feature-flags
// @Summary Feature flags as configured and as evaluated for the caller
// @Tags flags
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{raw=map[string]string,evaluated=map[string]bool}
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	raw := map[string]string{}
	evaluated := map[string]bool{}
	if s.featureFlags != nil {
		raw = s.featureFlags.Raw()
		if sess := currentSession(c); sess != nil {
			evaluated = s.featureFlags.Snapshot(sess.Identity.ID)
		}
	}
	return c.JSON(fiber.Map{
		"raw":       raw,
		"evaluated": evaluated,
	})
}
