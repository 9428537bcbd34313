package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	perrors "github.com/p-blackswan/contextd/internal/errors"
)

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}

// errorResponse maps a domain error onto a problem response.
func (h *Handlers) errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, perrors.ErrUnknownMetric):
		return problemResponse(c, fiber.StatusBadRequest, "unknown_metric", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrInvalidInput):
		return problemResponse(c, fiber.StatusBadRequest, "invalid_input", "Bad Request", err.Error())
	case errors.Is(err, perrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found", err.Error())
	case errors.Is(err, perrors.ErrConflict):
		return problemResponse(c, fiber.StatusConflict, "conflict", "Conflict",
			"The project was modified concurrently. Please retry.")
	case errors.Is(err, perrors.ErrUnavailable):
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("storage unavailable")
		return problemResponse(c, fiber.StatusServiceUnavailable, "storage_unavailable", "Service Unavailable",
			"Project storage is temporarily unavailable")
	}
	h.logger.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("unhandled error")
	return problemResponse(c, fiber.StatusInternalServerError, "internal_error", "Internal Server Error",
		"An internal error occurred")
}

func customErrorHandler(h *Handlers) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return problemResponse(c, fe.Code, "http_error", utils.StatusMessage(fe.Code), fe.Message)
		}
		return h.errorResponse(c, err)
	}
}
