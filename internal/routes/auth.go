package routes

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
)

type issueTokenRequest struct {
	Subject string      `json:"subject"`
	Role    access.Role `json:"role"`
}

type issueTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RegisterAuthRoutes wires token issuance. Only the system principal, which
// authenticates with the API key, may mint tokens for creators and staff.
func RegisterAuthRoutes(r fiber.Router, s *Services) {
	r.Post("/auth/tokens", func(c *fiber.Ctx) error {
		caller, _ := access.FromContext(c.UserContext())
		if caller.Role != access.RoleSystem {
			return fiber.NewError(http.StatusForbidden, "permission denied")
		}

		var req issueTokenRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		req.Subject = strings.TrimSpace(req.Subject)
		if req.Subject == "" {
			return fiber.NewError(http.StatusBadRequest, "subject is required")
		}
		if req.Role != access.RoleCreator && req.Role != access.RoleStaff {
			return fiber.NewError(http.StatusBadRequest, "role must be creator or staff")
		}

		token, err := s.Tokens.Issue(access.Principal{ID: req.Subject, Role: req.Role})
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(issueTokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int64(s.Tokens.TTL().Seconds()),
		})
	})
}
