package instrument

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"clienttabs/internal/store"
)

// ChangeHandler serves the schema change journal.
type ChangeHandler struct {
	store *store.Store
}

func NewChangeHandler(s *store.Store) *ChangeHandler {
	return &ChangeHandler{store: s}
}

// List handles GET /api/_admin/schema-changes with optional tab and action filters.
func (h *ChangeHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var conditions []string
	var args []any
	if v := c.Query("tab"); v != "" {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf("tab_name = $%d", len(args)))
	}
	if v := c.Query("action"); v != "" {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	dataSQL := fmt.Sprintf(
		"SELECT id, action, tab_name, field_name, detail, created_at FROM _schema_changes%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		whereClause, len(args)+1, len(args)+2)
	rows, err := store.QueryRows(ctx, h.store.DB, dataSQL, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return fmt.Errorf("list schema changes: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
		},
	})
}
