package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/access"
)

const (
	apiKeyHeader = "X-API-Key"
	principalKey = "principal"
)

// Authenticate resolves the caller from a bearer token or the system API key
// and stores the principal on the request context.
func Authenticate(resolver *access.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := resolver.Resolve(c.Get(fiber.HeaderAuthorization), c.Get(apiKeyHeader))
		if err != nil {
			return err
		}
		c.Locals(principalKey, p)
		c.SetUserContext(access.WithPrincipal(c.UserContext(), p))
		return c.Next()
	}
}

// RequireCapability rejects principals that lack capability.
func RequireCapability(checker access.Checker, capability access.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, _ := access.FromContext(c.UserContext())
		if !checker.Can(p, capability) {
			return fiber.NewError(http.StatusForbidden, "permission denied")
		}
		return c.Next()
	}
}

func principalID(c *fiber.Ctx) string {
	if p, ok := c.Locals(principalKey).(access.Principal); ok {
		return p.ID
	}
	return ""
}
