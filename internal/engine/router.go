package engine

import "github.com/gofiber/fiber/v2"

func RegisterClientRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	clients := app.Group("/api/clients", middleware...)

	clients.Get("/", h.List)
	clients.Get("/:id", h.Get)
	clients.Post("/", h.Create)
	clients.Put("/:id", h.Update)
	clients.Delete("/:id", h.Delete)
}
