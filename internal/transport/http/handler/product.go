package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
	"github.com/bibekshah220/app-server/pkg/utils"
)

type ProductHandler struct {
	products service.ProductService
	logger   *zap.Logger
	validate *validator.Validate
}

func NewProductHandler(products service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		logger:   logger,
		validate: validator.New(),
	}
}

type createProductDTO struct {
	Name          string `json:"name" validate:"required,min=2"`
	Description   string `json:"description"`
	Price         int64  `json:"price" validate:"required,gt=0"`
	StockQuantity int64  `json:"stock_quantity" validate:"gte=0"`
	ImageUrl      string `json:"image_url" validate:"omitempty,url"`
	Category      string `json:"category"`
}

func (h *ProductHandler) Create(c *fiber.Ctx) error {
	sellerID, ok := c.Locals("sellerId").(int64)
	if !ok || sellerID == 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
	}

	input := new(createProductDTO)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse product body", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	id, err := h.products.Create(c.UserContext(), &domain.Product{
		SellerID:      sellerID,
		Name:          input.Name,
		Description:   input.Description,
		Price:         input.Price,
		StockQuantity: input.StockQuantity,
		ImageUrl:      input.ImageUrl,
		Category:      input.Category,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"product_id": id,
		"status":     "success",
	})
}

func (h *ProductHandler) FindByID(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}

	product, err := h.products.FindByID(c.UserContext(), int64(id))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(product)
}

func (h *ProductHandler) List(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", 20))
	offset := int64(c.QueryInt("offset", 0))
	search := c.Query("search")

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	products, total, err := h.products.List(c.UserContext(), limit, offset, search)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"products": products,
		"total":    total,
	})
}
