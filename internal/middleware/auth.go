package middleware

import (
	"strings"

	"github.com/entity-history/backend/internal/auth"
	"github.com/entity-history/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	CtxActor = "actor"
	CtxRoles = "roles"
)

func AuthMiddleware(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(secret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxActor, claims.Actor())
		c.Locals(CtxRoles, claims.Roles)

		return c.Next()
	}
}

func GetActor(c *fiber.Ctx) string {
	actor, _ := c.Locals(CtxActor).(string)
	return actor
}

func GetRoles(c *fiber.Ctx) []string {
	roles, _ := c.Locals(CtxRoles).([]string)
	return roles
}

// RequirePermission rejects callers none of whose roles grant perm.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.AnyHasPermission(GetRoles(c), perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission " + perm + " required"})
		}
		return c.Next()
	}
}
