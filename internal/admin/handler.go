// Package admin serves the schema administration API: tabs, fields, field order
// and the schema change journal.
package admin

import (
	"github.com/gofiber/fiber/v2"

	"clienttabs/internal/apperr"
	"clienttabs/internal/instrument"
	"clienttabs/internal/metadata"
	"clienttabs/internal/naming"
	"clienttabs/internal/schema"
	"clienttabs/internal/store"
)

type Handler struct {
	store   *store.Store
	journal instrument.Recorder
	changes *instrument.ChangeHandler
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{
		store:   s,
		journal: instrument.NewJournal(),
		changes: instrument.NewChangeHandler(s),
	}
}

// RegisterAdminRoutes mounts the admin API. Every route requires an operator;
// mutations additionally require the admin role.
func RegisterAdminRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	admin := app.Group("/api/_admin", authMW)

	admin.Get("/schema", h.GetSchema)
	admin.Get("/field-metadata", h.ListFieldMetadata)
	admin.Get("/schema-changes", h.changes.List)

	admin.Get("/tabs", h.ListTabs)
	admin.Post("/tabs", adminMW, h.CreateTab)
	admin.Put("/tabs/:tab", adminMW, h.RenameTab)
	admin.Delete("/tabs/:tab", adminMW, h.DeleteTab)
	admin.Put("/tabs/:tab/field-order", adminMW, h.ReorderFields)

	admin.Get("/tabs/:tab/fields", h.ListFields)
	admin.Get("/tabs/:tab/fields/:field", h.GetField)
	admin.Post("/tabs/:tab/fields", adminMW, h.CreateField)
	admin.Put("/tabs/:tab/fields/:field", adminMW, h.UpdateField)
	admin.Delete("/tabs/:tab/fields/:field", adminMW, h.DeleteField)
}

type tabBody struct {
	Label string `json:"label"`
}

func (h *Handler) migrate(c *fiber.Ctx, fn func(m *schema.Migrator) error) error {
	return h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		return fn(schema.NewMigrator(tx, h.journal))
	})
}

func (h *Handler) read(c *fiber.Ctx, fn func(cat *schema.Catalog) error) error {
	return h.store.InTx(c.UserContext(), func(tx store.Querier) error {
		return fn(schema.NewCatalog(tx))
	})
}

func (h *Handler) GetSchema(c *fiber.Ctx) error {
	var cs *schema.ClientSchema
	err := h.read(c, func(cat *schema.Catalog) (err error) {
		cs, err = cat.GetClientSchema(c.UserContext())
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cs})
}

func (h *Handler) ListTabs(c *fiber.Ctx) error {
	var names []string
	err := h.read(c, func(cat *schema.Catalog) (err error) {
		names, err = cat.ListTabs(c.UserContext())
		return err
	})
	if err != nil {
		return err
	}

	tabs := make([]fiber.Map, len(names))
	for i, name := range names {
		tabs[i] = fiber.Map{"name": name, "label": naming.Label(name)}
	}
	return c.JSON(fiber.Map{"data": tabs})
}

func (h *Handler) CreateTab(c *fiber.Ctx) error {
	var body tabBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var tab *schema.Tab
	err := h.migrate(c, func(m *schema.Migrator) (err error) {
		tab, err = m.CreateTab(c.UserContext(), body.Label)
		return err
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": tab})
}

func (h *Handler) RenameTab(c *fiber.Ctx) error {
	var body tabBody
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var tab *schema.Tab
	err := h.migrate(c, func(m *schema.Migrator) (err error) {
		tab, err = m.RenameTab(c.UserContext(), c.Params("tab"), body.Label)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": tab})
}

func (h *Handler) DeleteTab(c *fiber.Ctx) error {
	err := h.migrate(c, func(m *schema.Migrator) error {
		return m.DeleteTab(c.UserContext(), c.Params("tab"))
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"name": c.Params("tab"), "deleted": true}})
}

// tabName resolves a tab given by label or name the way mutations do.
func tabName(raw string) (string, error) {
	name, err := naming.CanonicalName(raw)
	if err != nil {
		return "", apperr.NotFound("tab", raw)
	}
	return name, nil
}

func (h *Handler) ListFields(c *fiber.Ctx) error {
	tab, err := tabName(c.Params("tab"))
	if err != nil {
		return err
	}
	var fields []schema.Field
	err = h.read(c, func(cat *schema.Catalog) error {
		if err := cat.RequireTab(c.UserContext(), tab); err != nil {
			return err
		}
		var err error
		fields, err = cat.ListFields(c.UserContext(), tab)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fields})
}

func (h *Handler) GetField(c *fiber.Ctx) error {
	tab, err := tabName(c.Params("tab"))
	if err != nil {
		return err
	}
	var field *schema.Field
	err = h.read(c, func(cat *schema.Catalog) (err error) {
		field, err = cat.GetFieldSchema(c.UserContext(), tab, c.Params("field"))
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": field})
}

func (h *Handler) CreateField(c *fiber.Ctx) error {
	var spec schema.FieldSpec
	if err := c.BodyParser(&spec); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var field *schema.Field
	err := h.migrate(c, func(m *schema.Migrator) (err error) {
		field, err = m.CreateField(c.UserContext(), c.Params("tab"), spec)
		return err
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": field})
}

func (h *Handler) UpdateField(c *fiber.Ctx) error {
	var spec schema.FieldSpec
	if err := c.BodyParser(&spec); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var field *schema.Field
	err := h.migrate(c, func(m *schema.Migrator) (err error) {
		field, err = m.UpdateField(c.UserContext(), c.Params("tab"), c.Params("field"), spec)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": field})
}

func (h *Handler) DeleteField(c *fiber.Ctx) error {
	err := h.migrate(c, func(m *schema.Migrator) error {
		return m.DeleteField(c.UserContext(), c.Params("tab"), c.Params("field"))
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"tab": c.Params("tab"), "name": c.Params("field"), "deleted": true}})
}

func (h *Handler) ReorderFields(c *fiber.Ctx) error {
	var body struct {
		Fields []string `json:"fields"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.Invalid("Invalid JSON body")
	}

	var fields []schema.Field
	err := h.migrate(c, func(m *schema.Migrator) (err error) {
		fields, err = m.ReorderFields(c.UserContext(), c.Params("tab"), body.Fields)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fields})
}

func (h *Handler) ListFieldMetadata(c *fiber.Ctx) error {
	tab := c.Query("tab")
	if tab != "" {
		var err error
		if tab, err = tabName(tab); err != nil {
			return err
		}
	}
	var rows []metadata.FieldMetadata
	err := h.store.InTx(c.UserContext(), func(tx store.Querier) (err error) {
		meta := metadata.NewStore(tx)
		if tab != "" {
			rows, err = meta.GetAllForTab(c.UserContext(), tab)
		} else {
			rows, err = meta.All(c.UserContext())
		}
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}
