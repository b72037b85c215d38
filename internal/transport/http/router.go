package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bibekshah220/app-server/internal/transport/http/handler"
	"github.com/bibekshah220/app-server/internal/transport/http/middleware"
)

type Handlers struct {
	Checkout *handler.CheckoutHandler
	Order    *handler.OrderHandler
	Wallet   *handler.WalletHandler
	Product  *handler.ProductHandler
	Payment  *handler.PaymentHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, jwtSecret string) {
	payments := app.Group("/payments")
	payments.Post("/success", h.Payment.Success)
	payments.Post("/failure", h.Payment.Failure)

	api := app.Group("/api", middleware.NewAuthMiddleware(jwtSecret))

	product := api.Group("/products")
	product.Post("", middleware.NewSellerOnlyMiddleware(), h.Product.Create)
	product.Get("/:id", h.Product.FindByID)
	product.Get("", h.Product.List)

	order := api.Group("/orders")
	order.Post("", h.Checkout.Create)
	order.Get("/my", h.Order.ListMy)
	order.Get("/seller", middleware.NewSellerOnlyMiddleware(), h.Order.ListSeller)
	order.Get("/:id", h.Order.GetByID)
	order.Patch("/:id/status", middleware.NewSellerOnlyMiddleware(), h.Order.UpdateStatus)

	wallet := api.Group("/wallet", middleware.NewSellerOnlyMiddleware())
	wallet.Get("", h.Wallet.Get)
	wallet.Get("/transactions", h.Wallet.ListTransactions)
	wallet.Post("/withdraw", h.Wallet.Withdraw)
}
