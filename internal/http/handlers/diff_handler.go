package handlers

import (
	"bytes"
	"fmt"

	"github.com/entity-history/backend/internal/export"
	"github.com/entity-history/backend/internal/http/dto"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DiffHandler struct {
	diff *services.DiffService
	log  *zap.Logger
}

func NewDiffHandler(diff *services.DiffService, log *zap.Logger) *DiffHandler {
	return &DiffHandler{diff: diff, log: log}
}

// Diff compares state at two instants, optionally for one entity_uid.
func (h *DiffHandler) Diff(c *fiber.Ctx) error {
	from, err := parseAt(c, "from")
	if err != nil {
		return respondError(c, h.log, err)
	}
	to, err := parseAt(c, "to")
	if err != nil {
		return respondError(c, h.log, err)
	}

	var res models.DiffResult
	if raw := c.Query("entity_uid"); raw != "" {
		uid, perr := uuid.Parse(raw)
		if perr != nil {
			return respondError(c, h.log, models.Validationf("invalid entity_uid"))
		}
		res, err = h.diff.DiffEntity(c.UserContext(), uid, from, to)
	} else {
		res, err = h.diff.Diff(c.UserContext(), from, to)
	}
	if err != nil {
		return respondError(c, h.log, err)
	}

	if wantsXLSX(c) {
		var buf bytes.Buffer
		if err := export.WriteDiff(&buf, res); err != nil {
			return respondError(c, h.log, err)
		}
		c.Set(fiber.HeaderContentType, export.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="diff_%s_%s.xlsx"`,
			from.Format("20060102T150405Z"), to.Format("20060102T150405Z")))
		return c.Send(buf.Bytes())
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}
