package http

import (
	"context"
	"time"

	"github.com/entity-history/backend/internal/config"
	"github.com/entity-history/backend/internal/http/handlers"
	"github.com/entity-history/backend/internal/middleware"
	"github.com/entity-history/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Entities *handlers.EntityHandler
	Diff     *handlers.DiffHandler
	Types    *handlers.TypesHandler
	WSHub    *handlers.WSHub
	// Health reports backend reachability; nil means always healthy.
	Health func(ctx context.Context) error
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		if h.Health != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := h.Health(ctx); err != nil {
				log.Warn("health check failed", zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret, log))
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log))

	read := middleware.RequirePermission(rbac.PermReadEntities)
	write := middleware.RequirePermission(rbac.PermWriteEntities)
	audit := middleware.RequirePermission(rbac.PermReadAudit)
	manage := middleware.RequirePermission(rbac.PermManageTypes)

	// Entities
	api.Post("/entities", write, h.Entities.CreateEntity)
	api.Patch("/entities/:uid", write, h.Entities.UpdateEntity)
	api.Get("/entities", read, h.Entities.ListEntities)
	api.Get("/entities/:uid", read, h.Entities.GetEntity)
	api.Get("/entities/:uid/history", read, h.Entities.GetHistory)
	api.Get("/entities/:uid/audit", audit, h.Entities.GetAudit)
	api.Get("/entities/:uid/as-of", read, h.Entities.GetEntityAsOf)

	// Point-in-time reads
	api.Get("/entities-asof", read, h.Entities.AsOf)
	api.Get("/diff", read, h.Diff.Diff)

	// Reference types
	api.Get("/types/:kind", read, h.Types.ListTypes)
	api.Post("/types/:kind", manage, h.Types.CreateType)
	api.Post("/types/:kind/:code/activate", manage, h.Types.Activate)
	api.Post("/types/:kind/:code/deactivate", manage, h.Types.Deactivate)

	// WebSocket
	if h.WSHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(h.WSHub.HandleWS))
	}
}
