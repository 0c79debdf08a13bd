// Package engine converts between the wide, joined client row and the nested
// tab/field shape callers work with, and serves client records over HTTP.
package engine

import (
	"fmt"
	"time"

	"clienttabs/internal/metadata"
	"clienttabs/internal/naming"
	"clienttabs/internal/schema"
)

// ClientDetails is one client: its id and every tab with current field values.
type ClientDetails struct {
	ID        string       `json:"id"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	Tabs      []schema.Tab `json:"tabs"`

	// rows maps a tab name to the id of the client's row in that tab's table.
	rows map[string]string
}

// TabRowID returns the id of the client's row in tab, or "" when the client has
// never stored a value there.
func (d *ClientDetails) TabRowID(tab string) string {
	return d.rows[tab]
}

// Value returns the current value of tab.field and whether that field exists.
func (d *ClientDetails) Value(tab, field string) (any, bool) {
	for i := range d.Tabs {
		if d.Tabs[i].Name != tab {
			continue
		}
		if f := d.Tabs[i].Field(field); f != nil {
			return f.Value, true
		}
	}
	return nil, false
}

// copyTabs deep-copies the tab/field shape so that filling in values never
// touches the schema it came from.
func copyTabs(tabs []schema.Tab) []schema.Tab {
	out := make([]schema.Tab, len(tabs))
	for i, t := range tabs {
		fields := make([]schema.Field, len(t.Fields))
		for j, f := range t.Fields {
			if f.Options != nil {
				f.Options = append([]string(nil), f.Options...)
			}
			f.Value = f.Default
			fields[j] = f
		}
		t.Fields = fields
		out[i] = t
	}
	return out
}

// Hydrate builds a client from the schema and one wide row. Columns missing from
// the row, or NULL because the client has no row in that tab, keep the default.
// A nil row yields a client with every field at its default.
func Hydrate(cs *schema.ClientSchema, row map[string]any) *ClientDetails {
	d := &ClientDetails{Tabs: copyTabs(cs.Tabs), rows: map[string]string{}}
	if row == nil {
		return d
	}

	if id, ok := row[naming.RootIDColumn]; ok && id != nil {
		d.ID = fmt.Sprint(id)
	}
	if ts, ok := row[naming.RootCreated].(time.Time); ok {
		d.CreatedAt = &ts
	}

	for i := range d.Tabs {
		tab := &d.Tabs[i]
		if id, ok := row[tab.Name]; ok && id != nil {
			d.rows[tab.Name] = fmt.Sprint(id)
		}
		for j := range tab.Fields {
			f := &tab.Fields[j]
			v, ok := row[f.Column]
			if !ok || v == nil {
				continue
			}
			f.Value = columnValue(f.Type, v)
		}
	}
	return d
}

// columnValue converts a scanned column into the field's logical value.
func columnValue(ft metadata.FieldType, v any) any {
	switch ft {
	case metadata.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			return b == "t" || b == "true"
		}
		return v
	default:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		}
		return fmt.Sprint(v)
	}
}
