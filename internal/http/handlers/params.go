package handlers

import (
	"strconv"
	"time"

	"github.com/entity-history/backend/internal/middleware"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/timeparse"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const formatXLSX = "xlsx"

func parseUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	uid, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, models.Validationf("invalid %s", name)
	}
	return uid, nil
}

// parseAt reads a required timestamp query parameter.
func parseAt(c *fiber.Ctx, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, models.Validationf("%s is required", name)
	}
	return timeparse.Parse(raw)
}

func queryInt(c *fiber.Ctx, name string, def int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func entityFilter(c *fiber.Ctx) models.EntityFilter {
	return models.EntityFilter{
		EntityType: models.NormalizeRefCode(c.Query("type")),
		Query:      c.Query("q"),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	}
}

func actorFrom(c *fiber.Ctx) models.Actor {
	return models.Actor{
		ID:        middleware.GetActor(c),
		RequestID: middleware.GetRequestID(c),
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func wantsXLSX(c *fiber.Ctx) bool {
	return c.Query("format") == formatXLSX
}
