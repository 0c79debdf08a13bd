package engine

import (
	"github.com/gofiber/fiber/v2"

	"clienttabs/internal/apperr"
	"clienttabs/internal/store"
)

type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// List handles GET /api/clients
func (h *Handler) List(c *fiber.Ctx) error {
	var clients []*ClientDetails
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		var err error
		clients, err = NewRecords(tx).GetAllClients(c.UserContext(), c.Query("filter"))
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": clients,
		"meta": fiber.Map{"total": len(clients)},
	})
}

// Get handles GET /api/clients/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	var client *ClientDetails
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		var err error
		client, err = NewRecords(tx).GetClientDetails(c.UserContext(), c.Params("id"))
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": client})
}

// Create handles POST /api/clients
func (h *Handler) Create(c *fiber.Ctx) error {
	var body ClientDetails
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var client *ClientDetails
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		var err error
		client, err = NewRecords(tx).CreateClient(c.UserContext(), &body)
		return err
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": client})
}

// Update handles PUT /api/clients/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	var body ClientDetails
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var client *ClientDetails
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		var err error
		client, err = NewRecords(tx).UpdateClient(c.UserContext(), c.Params("id"), &body)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": client})
}

// Delete handles DELETE /api/clients/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		return NewRecords(tx).DeleteClient(c.UserContext(), id)
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}
