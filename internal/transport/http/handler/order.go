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

type OrderHandler struct {
	orders     service.OrderQueryService
	settlement service.SettlementService
	logger     *zap.Logger
	validate   *validator.Validate
}

func NewOrderHandler(orders service.OrderQueryService, settlement service.SettlementService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:     orders,
		settlement: settlement,
		logger:     logger,
		validate:   validator.New(),
	}
}

func (h *OrderHandler) GetByID(c *fiber.Ctx) error {
	orderID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	order, err := h.orders.GetOrder(c.UserContext(), int64(orderID))
	if err != nil {
		return errorResponse(c, err)
	}

	userID, _ := c.Locals("userId").(int64)
	sellerID, _ := c.Locals("sellerId").(int64)

	if order.UserID != userID && order.SellerID != sellerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your order"})
	}

	return c.JSON(order)
}

func (h *OrderHandler) ListMy(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(int64)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "userId parsing error"})
	}

	orders, err := h.orders.ListUserOrders(c.UserContext(), userID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"orders": orders})
}

func (h *OrderHandler) ListSeller(c *fiber.Ctx) error {
	sellerID, ok := c.Locals("sellerId").(int64)
	if !ok || sellerID == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
	}

	orders, err := h.orders.ListSellerOrders(c.UserContext(), sellerID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"orders": orders})
}

type updateStatusDTO struct {
	Status string `json:"status" validate:"required,oneof=shipped delivered cancelled"`
}

// UpdateStatus drives the fulfillment state machine. The delivered transition
// also settles escrow for the order.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	orderID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	input := new(updateStatusDTO)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	sellerID, ok := c.Locals("sellerId").(int64)
	if !ok || sellerID == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
	}

	order, err := h.orders.GetOrder(c.UserContext(), int64(orderID))
	if err != nil {
		return errorResponse(c, err)
	}

	if order.SellerID != sellerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your order"})
	}

	err = h.settlement.UpdateOrderStatus(c.UserContext(), int64(orderID), domain.OrderStatus(input.Status))
	if err != nil {
		if errors.Is(err, domain.ErrNotHeld) {
			mylogger.Warn(
				c.UserContext(),
				h.logger,
				"duplicate delivery confirmation",
				zap.Int("order_id", orderID),
			)
		}

		return errorResponse(c, err)
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"order status updated",
		zap.Int("order_id", orderID),
		zap.String("status", input.Status),
	)

	return c.JSON(fiber.Map{"status": "success"})
}
