package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
	"github.com/bibekshah220/app-server/pkg/mylogger"
	"github.com/bibekshah220/app-server/pkg/utils"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		logger:   logger,
		validate: validator.New(),
	}
}

type checkoutLineDTO struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequestDTO struct {
	PaymentMethod string                 `json:"payment_method" validate:"required,oneof=cod card wallet"`
	Shipping      domain.ShippingAddress `json:"shipping" validate:"required"`
	Lines         []checkoutLineDTO      `json:"items" validate:"required,min=1,dive"`
}

type orderSummaryDTO struct {
	OrderID     int64 `json:"order_id"`
	SellerID    int64 `json:"seller_id"`
	TotalAmount int64 `json:"total_amount"`
}

func (h *CheckoutHandler) Create(c *fiber.Ctx) error {
	input := new(checkoutRequestDTO)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse checkout body", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	userID, ok := c.Locals("userId").(int64)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	lines := make([]service.CheckoutLine, 0, len(input.Lines))
	for _, l := range input.Lines {
		lines = append(lines, service.CheckoutLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
		})
	}

	orders, err := h.checkout.Checkout(c.UserContext(), &service.CheckoutRequest{
		UserID:        userID,
		PaymentMethod: input.PaymentMethod,
		Shipping:      input.Shipping,
		Lines:         lines,
	})
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"checkout failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	summaries := make([]orderSummaryDTO, 0, len(orders))
	for _, o := range orders {
		summaries = append(summaries, orderSummaryDTO{
			OrderID:     o.ID,
			SellerID:    o.SellerID,
			TotalAmount: o.TotalAmount,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"orders": summaries,
	})
}
