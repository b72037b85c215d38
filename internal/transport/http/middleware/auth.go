package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID   int64 `json:"user_id"`
	SellerID int64 `json:"seller_id"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware validates the bearer token locally and stores the caller
// identity in fiber locals. SellerID is zero for buyers.
func NewAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid header format"})
		}

		claims := new(Claims)
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid token"})
		}

		c.Locals("userId", claims.UserID)
		c.Locals("sellerId", claims.SellerID)
		return c.Next()
	}
}

// NewSellerOnlyMiddleware rejects callers whose token carries no seller id.
func NewSellerOnlyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sellerID, ok := c.Locals("sellerId").(int64)
		if !ok || sellerID == 0 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden: seller account required"})
		}

		return c.Next()
	}
}
