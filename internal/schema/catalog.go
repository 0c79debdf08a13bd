// Package schema reflects and mutates the physical layout behind client tabs: one
// satellite table per tab, joined to the clients table through a foreign-key
// column, with one column per field.
package schema

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/lib/pq"

	"clienttabs/internal/apperr"
	"clienttabs/internal/metadata"
	"clienttabs/internal/naming"
	"clienttabs/internal/store"
)

// Column is one reflected column of a table.
type Column struct {
	Name       string `json:"name"`
	SQLType    string `json:"sql_type"`
	IsNullable bool   `json:"is_nullable"`
	EnumType   string `json:"enum_type,omitempty"`
}

// Field describes one field of a tab as callers see it. Value starts as Default
// and is filled in by record hydration.
type Field struct {
	Name     string             `json:"name"`
	Column   string             `json:"column"`
	Label    string             `json:"label"`
	Type     metadata.FieldType `json:"type"`
	Required bool               `json:"required"`
	Position int                `json:"position"`
	Options  []string           `json:"options,omitempty"`
	Default  any                `json:"default"`
	Value    any                `json:"value"`
}

type Tab struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Fields []Field `json:"fields"`
}

// ClientSchema is the logical shape of a client: every tab with its ordered fields.
type ClientSchema struct {
	Tabs []Tab `json:"tabs"`
}

// Tab returns the named tab or nil.
func (s *ClientSchema) Tab(name string) *Tab {
	for i := range s.Tabs {
		if s.Tabs[i].Name == name {
			return &s.Tabs[i]
		}
	}
	return nil
}

// Field returns the field with the given short name or nil.
func (t *Tab) Field(name string) *Field {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// Catalog reads the live schema from the Postgres system catalog. It is bound to
// one request's transaction.
type Catalog struct {
	q    store.Querier
	meta *metadata.Store
}

func NewCatalog(q store.Querier) *Catalog {
	return &Catalog{q: q, meta: metadata.NewStore(q)}
}

// GetTableColumns lists the columns of table in physical order.
func (c *Catalog) GetTableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES',
		        CASE WHEN data_type = 'USER-DEFINED' THEN udt_name ELSE '' END
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, apperr.SchemaReflection("read columns of "+table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.SQLType, &col.IsNullable, &col.EnumType); err != nil {
			return nil, apperr.SchemaReflection("scan column of "+table, err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.SchemaReflection("read columns of "+table, err)
	}
	if len(cols) == 0 {
		return nil, apperr.SchemaReflection(fmt.Sprintf("table %s not found", table), nil)
	}
	return cols, nil
}

// StoredEnumValues returns the values of an enum type in declaration order.
func (c *Catalog) StoredEnumValues(ctx context.Context, typeName string) ([]string, error) {
	values, err := store.QueryStrings(ctx, c.q,
		`SELECT e.enumlabel
		 FROM pg_enum e
		 JOIN pg_type t ON t.oid = e.enumtypid
		 JOIN pg_namespace n ON n.oid = t.typnamespace
		 WHERE n.nspname = 'public' AND t.typname = $1
		 ORDER BY e.enumsortorder`, typeName)
	if err != nil {
		return nil, apperr.SchemaReflection("read values of enum "+typeName, err)
	}
	if len(values) == 0 {
		return nil, apperr.SchemaReflection(fmt.Sprintf("enum type %s not found", typeName), nil)
	}
	return values, nil
}

// GetEnumValues returns the enum values with the unset marker first, which is
// the option list callers display.
func (c *Catalog) GetEnumValues(ctx context.Context, typeName string) ([]string, error) {
	values, err := c.StoredEnumValues(ctx, typeName)
	if err != nil {
		return nil, err
	}
	if values[0] == naming.Unset {
		return values, nil
	}
	return append([]string{naming.Unset}, values...), nil
}

// ListTabs returns every tab, derived from the foreign keys on the clients table,
// in the order the tabs were added.
func (c *Catalog) ListTabs(ctx context.Context) ([]string, error) {
	tabs, err := store.QueryStrings(ctx, c.q,
		`SELECT f.relname
		 FROM pg_constraint con
		 JOIN pg_class r ON r.oid = con.conrelid
		 JOIN pg_class f ON f.oid = con.confrelid
		 JOIN pg_namespace n ON n.oid = r.relnamespace
		 JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = con.conkey[1]
		 WHERE con.contype = 'f' AND n.nspname = 'public' AND r.relname = $1
		 ORDER BY a.attnum`, naming.RootTable)
	if err != nil {
		return nil, apperr.SchemaReflection("list tabs", err)
	}
	if tabs == nil {
		tabs = []string{}
	}
	return tabs, nil
}

// RequireTab fails with NotFound unless tab is a registered tab.
func (c *Catalog) RequireTab(ctx context.Context, tab string) error {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return err
	}
	for _, t := range tabs {
		if t == tab {
			return nil
		}
	}
	return apperr.NotFound("tab", tab)
}

// TableExists reports whether any relation named table exists, tab or not.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := c.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		table).Scan(&exists)
	if err != nil {
		return false, apperr.SchemaReflection("check table "+table, err)
	}
	return exists, nil
}

// ColumnExists reports whether any of columns exists in any of tables.
func (c *Catalog) ColumnExists(ctx context.Context, tables, columns []string) (bool, error) {
	var exists bool
	err := c.q.QueryRowContext(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM information_schema.columns
		   WHERE table_schema = 'public' AND table_name = ANY($1) AND column_name = ANY($2))`,
		pq.Array(tables), pq.Array(columns)).Scan(&exists)
	if err != nil {
		return false, apperr.SchemaReflection("check columns", err)
	}
	return exists, nil
}

// EnumStatus reports whether the enum type exists and whether any column uses it.
func (c *Catalog) EnumStatus(ctx context.Context, typeName string) (exists, used bool, err error) {
	err = c.q.QueryRowContext(ctx,
		`SELECT
		   EXISTS(SELECT 1 FROM pg_type t JOIN pg_namespace n ON n.oid = t.typnamespace
		          WHERE n.nspname = 'public' AND t.typname = $1),
		   EXISTS(SELECT 1 FROM information_schema.columns
		          WHERE table_schema = 'public' AND udt_name = $1)`,
		typeName).Scan(&exists, &used)
	if err != nil {
		return false, false, apperr.SchemaReflection("check enum "+typeName, err)
	}
	return exists, used, nil
}

// GetClientSchema reflects every tab with its ordered fields.
func (c *Catalog) GetClientSchema(ctx context.Context) (*ClientSchema, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return nil, err
	}

	cs := &ClientSchema{Tabs: make([]Tab, 0, len(tabs))}
	for _, name := range tabs {
		fields, err := c.ListFields(ctx, name)
		if err != nil {
			return nil, err
		}
		cs.Tabs = append(cs.Tabs, Tab{Name: name, Label: naming.Label(name), Fields: fields})
	}
	return cs, nil
}

// ListFields reflects the fields of one tab ordered by their metadata position.
// Fields without a metadata row sort last in physical order.
func (c *Catalog) ListFields(ctx context.Context, tab string) ([]Field, error) {
	cols, err := c.GetTableColumns(ctx, tab)
	if err != nil {
		return nil, err
	}
	rows, err := c.meta.GetAllForTab(ctx, tab)
	if err != nil {
		return nil, apperr.SchemaReflection("read field positions of "+tab, err)
	}
	positions := make(map[string]int, len(rows))
	labels := make(map[string]string, len(rows))
	for _, r := range rows {
		positions[r.Field] = r.Position
		labels[r.Field] = r.Label
	}

	idCol := naming.TabIDColumn(tab)
	fields := []Field{}
	for _, col := range cols {
		if col.Name == idCol {
			continue
		}
		ft, ok := metadata.FieldTypeFromCatalog(col.SQLType)
		if !ok {
			log.Printf("WARN: skipping column %s.%s of unsupported type %s", tab, col.Name, col.SQLType)
			continue
		}

		short := naming.FieldShortName(tab, col.Name)
		f := Field{
			Name:     short,
			Column:   col.Name,
			Label:    naming.Label(short),
			Type:     ft,
			Required: !col.IsNullable,
			Position: -1,
			Default:  ft.Zero(),
			Value:    ft.Zero(),
		}
		if pos, ok := positions[col.Name]; ok {
			f.Position = pos
		}
		if l := labels[col.Name]; l != "" {
			f.Label = l
		}
		if ft.UsesEnum() {
			opts, err := c.GetEnumValues(ctx, col.EnumType)
			if err != nil {
				return nil, err
			}
			f.Options = opts
		}
		fields = append(fields, f)
	}

	sort.SliceStable(fields, func(i, j int) bool {
		pi, pj := fields[i].Position, fields[j].Position
		if pi < 0 || pj < 0 {
			return pi >= 0 && pj < 0
		}
		return pi < pj
	})
	return fields, nil
}

// GetFieldSchema returns one field of a tab; field may be the short name or a label.
func (c *Catalog) GetFieldSchema(ctx context.Context, tab, field string) (*Field, error) {
	if err := c.RequireTab(ctx, tab); err != nil {
		return nil, err
	}
	short, err := naming.CanonicalName(field)
	if err != nil {
		return nil, err
	}
	fields, err := c.ListFields(ctx, tab)
	if err != nil {
		return nil, err
	}
	for i := range fields {
		if fields[i].Name == short {
			return &fields[i], nil
		}
	}
	return nil, apperr.NotFound("field", tab+"."+short)
}
