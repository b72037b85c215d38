package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
	"github.com/bibekshah220/app-server/pkg/mylogger"
	"github.com/bibekshah220/app-server/pkg/utils"
)

// PaymentHandler receives the payment gateway's server-to-server callbacks.
// The gateway retries callbacks, so both endpoints answer duplicates with
// 200 instead of an error.
type PaymentHandler struct {
	settlement service.SettlementService
	logger     *zap.Logger
	validate   *validator.Validate
}

func NewPaymentHandler(settlement service.SettlementService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		settlement: settlement,
		logger:     logger,
		validate:   validator.New(),
	}
}

type paymentCallbackDTO struct {
	OrderID    int64  `json:"order_id" validate:"required,gt=0"`
	PaymentRef string `json:"payment_ref" validate:"required"`
}

func (h *PaymentHandler) Success(c *fiber.Ctx) error {
	input := new(paymentCallbackDTO)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	err := h.settlement.HoldFunds(c.UserContext(), input.OrderID, input.PaymentRef)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyHeld) {
			return c.JSON(fiber.Map{"status": "already processed"})
		}

		mylogger.Error(
			c.UserContext(),
			h.logger,
			"payment success callback failed",
			zap.Int64("order_id", input.OrderID),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"status": "success"})
}

type paymentFailureDTO struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

func (h *PaymentHandler) Failure(c *fiber.Ctx) error {
	input := new(paymentFailureDTO)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	err := h.settlement.CancelOrder(c.UserContext(), input.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotCancellable) {
			return c.JSON(fiber.Map{"status": "already processed"})
		}

		mylogger.Error(
			c.UserContext(),
			h.logger,
			"payment failure callback failed",
			zap.Int64("order_id", input.OrderID),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}
