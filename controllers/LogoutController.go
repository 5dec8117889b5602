package controllers

import (
	"log/slog"

	"github.com/addspin/certgate/middleware"
	"github.com/gofiber/fiber/v3"
)

// LogoutController handles user logout
func LogoutController(c fiber.Ctx) error {
	sess, err := middleware.Store.Get(c)
	if err != nil {
		slog.Error("session error", "error", err)
		c.Set("Location", "/")
		return c.SendStatus(fiber.StatusFound)
	}

	// Remove authentication
	sess.Delete("authenticated")
	sess.Delete("uid")
	if err := sess.Save(); err != nil {
		slog.Error("session save error", "error", err)
	}

	c.Set("Location", "/")
	return c.SendStatus(fiber.StatusFound)
}
