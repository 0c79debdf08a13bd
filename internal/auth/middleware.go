package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"clienttabs/internal/apperr"
)

const operatorKey = "operator"

// AuthMiddleware validates the bearer token and stores the Operator on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return apperr.Unauthorized("Missing auth token")
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return apperr.Unauthorized("Invalid auth header format")
		}

		claims, err := ParseAccessToken(strings.TrimSpace(token), secret)
		if err != nil {
			return apperr.Unauthorized("Invalid or expired token")
		}

		c.Locals(operatorKey, &Operator{ID: claims.Subject, Roles: claims.Roles})
		return c.Next()
	}
}

// RequireAdmin guards schema mutations. It must run after AuthMiddleware.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		op := GetOperator(c)
		if op == nil {
			return apperr.Unauthorized("Missing auth token")
		}
		if !op.IsAdmin() {
			return apperr.Forbidden("Admin access required")
		}
		return c.Next()
	}
}

func GetOperator(c *fiber.Ctx) *Operator {
	op, _ := c.Locals(operatorKey).(*Operator)
	return op
}
