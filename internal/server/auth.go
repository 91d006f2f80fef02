package server

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// TokenAuth validates "Authorization: Token <token>". A "Bearer" prefix
// is accepted too. An empty token disables the check.
func TokenAuth(token string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			logger.Warn("missing authorization header", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication token missing",
			})
		}

		got := header
		for _, prefix := range []string{"Token ", "Bearer "} {
			if strings.HasPrefix(header, prefix) {
				got = strings.TrimPrefix(header, prefix)
				break
			}
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			logger.Warn("invalid token", "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authentication token",
			})
		}
		return c.Next()
	}
}
