package controllers

import (
	"github.com/addspin/certgate/middleware"
	"github.com/gofiber/fiber/v3"
)

func Index(c fiber.Ctx) error {
	return c.Render("index/index", fiber.Map{
		"Title":    "Certificate login",
		"LoggedIn": middleware.SessionUID(c) > 0,
	})
}
