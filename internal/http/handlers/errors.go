package handlers

import (
	"errors"

	"github.com/entity-history/backend/internal/http/dto"
	"github.com/entity-history/backend/internal/middleware"
	"github.com/entity-history/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrInvalidRange), errors.Is(err, models.ErrUnknownReference):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, models.ErrParse), errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := StatusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

// ErrorHandler is the fiber fallback for errors returned past the handlers.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return respondError(c, log, err)
	}
}
