package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/creator"
	"github.com/tip-zed/tipzed/internal/middleware"
)

// RegisterCreatorRoutes wires creator onboarding and lookup.
func RegisterCreatorRoutes(r fiber.Router, s *Services) {
	h := creator.NewHandler(s.Creators)
	r.Post("/creators", middleware.RequireCapability(s.Checker, access.CapabilityManageWallets), h.Register)
	r.Get("/creators/:creatorId", selfOrStaff(s.Checker), h.Get)
}

// selfOrStaff lets creators read their own profile and elevated roles read any.
func selfOrStaff(checker access.Checker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, _ := access.FromContext(c.UserContext())
		if !checker.CanAccessWallet(p, c.Params("creatorId")) {
			return fiber.NewError(http.StatusForbidden, "permission denied")
		}
		return c.Next()
	}
}
