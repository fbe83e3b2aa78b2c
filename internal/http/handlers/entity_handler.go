package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/entity-history/backend/internal/export"
	"github.com/entity-history/backend/internal/http/dto"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/services"
	"github.com/entity-history/backend/internal/timeparse"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type EntityHandler struct {
	transitions *services.TransitionService
	asOf        *services.AsOfService
	history     *services.HistoryService
	log         *zap.Logger
}

func NewEntityHandler(
	transitions *services.TransitionService,
	asOf *services.AsOfService,
	history *services.HistoryService,
	log *zap.Logger,
) *EntityHandler {
	return &EntityHandler{transitions: transitions, asOf: asOf, history: history, log: log}
}

func (h *EntityHandler) CreateEntity(c *fiber.Ctx) error {
	var req dto.CreateEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := dto.Validate(req); err != nil {
		return respondError(c, h.log, err)
	}
	changeTS, err := timeparse.Parse(req.ChangeTS)
	if err != nil {
		return respondError(c, h.log, err)
	}

	w := models.EntityWrite{
		EntityType:  &req.EntityType,
		DisplayName: &req.DisplayName,
		Details:     dto.DetailWrites(req.Details),
		ChangeTS:    changeTS,
		Actor:       actorFrom(c),
	}
	if req.EntityUID != "" {
		w.EntityUID = uuid.MustParse(req.EntityUID)
	}

	res, err := h.transitions.Create(c.UserContext(), w)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *EntityHandler) UpdateEntity(c *fiber.Ctx) error {
	uid, err := parseUID(c, "uid")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req dto.UpdateEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := dto.Validate(req); err != nil {
		return respondError(c, h.log, err)
	}
	changeTS, err := timeparse.Parse(req.ChangeTS)
	if err != nil {
		return respondError(c, h.log, err)
	}

	res, err := h.transitions.Update(c.UserContext(), models.EntityWrite{
		EntityUID:   uid,
		EntityType:  req.EntityType,
		DisplayName: req.DisplayName,
		Details:     dto.DetailWrites(req.Details),
		ChangeTS:    changeTS,
		Actor:       actorFrom(c),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *EntityHandler) ListEntities(c *fiber.Ctx) error {
	f := entityFilter(c)
	snaps, total, err := h.asOf.ListCurrent(c.UserContext(), f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{
		Items:  snaps,
		Total:  total,
		Limit:  min(limit, maxPageLimit),
		Offset: max(f.Offset, 0),
	}})
}

func (h *EntityHandler) GetEntity(c *fiber.Ctx) error {
	uid, err := parseUID(c, "uid")
	if err != nil {
		return respondError(c, h.log, err)
	}
	snap, err := h.asOf.Current(c.UserContext(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: snap})
}

func (h *EntityHandler) GetEntityAsOf(c *fiber.Ctx) error {
	uid, err := parseUID(c, "uid")
	if err != nil {
		return respondError(c, h.log, err)
	}
	at, err := parseAt(c, "at")
	if err != nil {
		return respondError(c, h.log, err)
	}
	snap, err := h.asOf.Get(c.UserContext(), uid, at)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: snap})
}

func (h *EntityHandler) GetHistory(c *fiber.Ctx) error {
	uid, err := parseUID(c, "uid")
	if err != nil {
		return respondError(c, h.log, err)
	}
	hist, err := h.history.Assemble(c.UserContext(), uid)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if wantsXLSX(c) {
		return h.sendWorkbook(c, fmt.Sprintf("history_%s.xlsx", uid), func(buf *bytes.Buffer) error {
			return export.WriteHistory(buf, hist)
		})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: hist})
}

func (h *EntityHandler) GetAudit(c *fiber.Ctx) error {
	uid, err := parseUID(c, "uid")
	if err != nil {
		return respondError(c, h.log, err)
	}
	limit := queryInt(c, "limit", defaultPageLimit)
	offset := queryInt(c, "offset", 0)
	records, err := h.history.AuditTrail(c.UserContext(), uid, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: records})
}

// AsOf lists entity snapshots at a point in time. Without `at` the current
// instant is used. The xlsx format exports every match, ignoring paging.
func (h *EntityHandler) AsOf(c *fiber.Ctx) error {
	at, err := timeparse.ParseOr(c.Query("at"), time.Now())
	if err != nil {
		return respondError(c, h.log, err)
	}
	f := entityFilter(c)

	if wantsXLSX(c) {
		f.Limit, f.Offset = 0, 0
		snaps, err := h.asOf.Resolve(c.UserContext(), at, f)
		if err != nil {
			return respondError(c, h.log, err)
		}
		return h.sendWorkbook(c, fmt.Sprintf("as_of_%s.xlsx", at.Format("20060102T150405Z")), func(buf *bytes.Buffer) error {
			return export.WriteSnapshots(buf, snaps)
		})
	}

	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	f.Limit = min(f.Limit, maxPageLimit)
	f.Offset = max(f.Offset, 0)
	snaps, err := h.asOf.Resolve(c.UserContext(), at, f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"as_of":  at,
		"items":  snaps,
		"limit":  f.Limit,
		"offset": f.Offset,
	}})
}

func (h *EntityHandler) sendWorkbook(c *fiber.Ctx, filename string, write func(*bytes.Buffer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return respondError(c, h.log, err)
	}
	c.Set(fiber.HeaderContentType, export.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(buf.Bytes())
}
