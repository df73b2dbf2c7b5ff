package serverutils

import (
	"errors"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error kind to the HTTP status it is reported with.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, apperror.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperror.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperror.ErrUpstreamTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, apperror.ErrCacheUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandlerMiddleware renders errors returned by later handlers in the
// common envelope. Internal errors are logged and never echoed to the client.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := StatusFor(err)
		message := err.Error()
		var fields map[string]string
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			fields = vErr.Fields
			message = "validation failed"
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("HTTP", "request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"status": status,
				"error":  err.Error(),
			})
			if status == fiber.StatusInternalServerError {
				message = "internal server error"
			}
		}

		return ctx.Status(status).JSON(ErrorResponse(status, message, fields))
	}
}
