package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/bibekshah220/app-server/internal/domain"
)

// statusFromError maps domain sentinels to HTTP status codes. Anything not
// recognized is treated as an internal error.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrSellerNotFound),
		errors.Is(err, domain.ErrWalletNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrOrderNotCancellable),
		errors.Is(err, domain.ErrInvalidStatusTransition):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrAlreadyHeld),
		errors.Is(err, domain.ErrNotHeld),
		errors.Is(err, domain.ErrOrderCancelled):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	code := statusFromError(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		msg = "internal error"
	}

	return c.Status(code).JSON(fiber.Map{"error": msg})
}
