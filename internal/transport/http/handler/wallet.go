package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/service"
	"github.com/bibekshah220/app-server/pkg/mylogger"
	"github.com/bibekshah220/app-server/pkg/utils"
)

type WalletHandler struct {
	wallet   service.WalletService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewWalletHandler(wallet service.WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		wallet:   wallet,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *WalletHandler) Get(c *fiber.Ctx) error {
	sellerID, ok := c.Locals("sellerId").(int64)
	if !ok || sellerID == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
	}

	wallet, err := h.wallet.GetWallet(c.UserContext(), sellerID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(wallet)
}

func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	sellerID, ok := c.Locals("sellerId").(int64)
	if !ok || sellerID == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
	}

	limit := int64(c.QueryInt("limit", 20))
	offset := int64(c.QueryInt("offset", 0))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, total, err := h.wallet.ListTransactions(c.UserContext(), sellerID, limit, offset)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"transactions": transactions,
		"total":        total,
	})
}

type withdrawDTO struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	sellerID, ok := c.Locals("sellerId").(int64)
	if !ok || sellerID == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
	}

	input := new(withdrawDTO)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	transaction, err := h.wallet.Withdraw(c.UserContext(), sellerID, input.Amount)
	if err != nil {
		mylogger.Warn(
			c.UserContext(),
			h.logger,
			"withdrawal failed",
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", input.Amount),
			zap.Error(err),
		)

		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":      "success",
		"transaction": transaction,
	})
}
