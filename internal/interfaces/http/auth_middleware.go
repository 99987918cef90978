package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// LocalActor is the Fiber locals key holding the resolved UserContext.
const LocalActor = "actor"

// AuthMiddleware resolves the Bearer token to a UserContext via the session
// store and stores it in c.Locals.
func AuthMiddleware(sessions opportunity.SessionStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header required")
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return unauthorized(c, "format: Bearer <token>")
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return unauthorized(c, "empty token")
		}
		actor, err := sessions.Resolve(c.UserContext(), token)
		if err != nil {
			return unauthorized(c, "invalid or expired token")
		}
		c.Locals(LocalActor, *actor)
		return c.Next()
	}
}

// Actor returns the UserContext placed by the auth middleware.
func Actor(c *fiber.Ctx) entity.UserContext {
	v := c.Locals(LocalActor)
	if v == nil {
		return entity.UserContext{}
	}
	actor, _ := v.(entity.UserContext)
	return actor
}
