package handlers

import (
	"github.com/entity-history/backend/internal/http/dto"
	"github.com/entity-history/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type TypesHandler struct {
	types *services.RefTypeService
	log   *zap.Logger
}

func NewTypesHandler(types *services.RefTypeService, log *zap.Logger) *TypesHandler {
	return &TypesHandler{types: types, log: log}
}

func (h *TypesHandler) ListTypes(c *fiber.Ctx) error {
	out, err := h.types.List(c.UserContext(), c.Params("kind"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *TypesHandler) CreateType(c *fiber.Ctx) error {
	var req dto.CreateRefTypeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request"})
	}
	if err := dto.Validate(req); err != nil {
		return respondError(c, h.log, err)
	}
	rt, err := h.types.Create(c.UserContext(), c.Params("kind"), req.Code, req.Name, req.Description)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: rt})
}

func (h *TypesHandler) Activate(c *fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *TypesHandler) Deactivate(c *fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *TypesHandler) setActive(c *fiber.Ctx, active bool) error {
	rt, err := h.types.SetActive(c.UserContext(), c.Params("kind"), c.Params("code"), active)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: rt})
}
