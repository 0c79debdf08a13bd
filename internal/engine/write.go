package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"clienttabs/internal/apperr"
	"clienttabs/internal/metadata"
	"clienttabs/internal/naming"
	"clienttabs/internal/schema"
)

// TabWrite is one planned statement against a tab table. Insert writes a new row
// with RowID; otherwise the existing row RowID is updated.
type TabWrite struct {
	Tab     string
	RowID   string
	Insert  bool
	Columns []string
	Values  []any
}

// Link points the clients column of Tab at a newly inserted tab row.
type Link struct {
	Tab   string
	RowID string
}

// WritePlan is everything needed to store one client.
type WritePlan struct {
	ClientID string
	Tabs     []TabWrite
	Links    []Link
}

// Merge overlays the values of input onto d, matching tabs and fields by name.
// Tabs and fields that input leaves out keep their current value.
func Merge(d *ClientDetails, input *ClientDetails) error {
	if input == nil {
		return nil
	}
	for _, in := range input.Tabs {
		var tab *schema.Tab
		for i := range d.Tabs {
			if d.Tabs[i].Name == in.Name {
				tab = &d.Tabs[i]
				break
			}
		}
		if tab == nil {
			return apperr.Validation(in.Name, "unknown", fmt.Sprintf("unknown tab %s", in.Name))
		}
		for _, inField := range in.Fields {
			f := tab.Field(inField.Name)
			if f == nil {
				return apperr.Validation(inField.Name, "unknown", fmt.Sprintf("unknown field %s in tab %s", inField.Name, in.Name))
			}
			v, err := coerce(f, inField.Value)
			if err != nil {
				return err
			}
			f.Value = v
		}
	}
	return nil
}

// coerce checks an incoming value against the field type. JSON null resets the
// field to its default.
func coerce(f *schema.Field, v any) (any, error) {
	if v == nil {
		return f.Default, nil
	}
	switch f.Type {
	case metadata.TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, apperr.Validation(f.Label, "type", fmt.Sprintf("%s must be true or false", f.Label))
		}
		return b, nil
	case metadata.TypeSelect:
		s, ok := v.(string)
		if !ok {
			return nil, apperr.Validation(f.Label, "type", fmt.Sprintf("%s must be one of its options", f.Label))
		}
		for _, o := range f.Options {
			if o == s {
				return s, nil
			}
		}
		return nil, apperr.Validation(f.Label, "options", fmt.Sprintf("%q is not an option of %s", s, f.Label))
	default:
		s, ok := v.(string)
		if !ok {
			return nil, apperr.Validation(f.Label, "type", fmt.Sprintf("%s must be text", f.Label))
		}
		return s, nil
	}
}

// Validate fails on the first required field, in display order, that is empty or
// unset.
func Validate(d *ClientDetails) error {
	for _, tab := range d.Tabs {
		for _, f := range tab.Fields {
			if f.Required && isBlank(f.Value) {
				return apperr.Validation(f.Label, "required", fmt.Sprintf("%s is required", f.Label))
			}
		}
	}
	return nil
}

func isBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == "" || s == naming.Unset
	}
	return false
}

// storedValue is what goes into the column for f. The unset marker is never
// stored; a select left unset takes its first real option.
func storedValue(f *schema.Field) any {
	if f.Value == naming.Unset {
		if len(f.Options) > 1 {
			return f.Options[1]
		}
		return nil
	}
	return f.Value
}

func isDefault(f *schema.Field) bool {
	return f.Value == f.Default
}

// Dehydrate plans the writes for d. A tab the client already has a row in is
// always updated; a new row is only inserted for a tab with at least one
// non-default value.
func Dehydrate(d *ClientDetails) *WritePlan {
	plan := &WritePlan{ClientID: d.ID}
	for _, tab := range d.Tabs {
		if len(tab.Fields) == 0 {
			continue
		}
		rowID := d.TabRowID(tab.Name)
		if rowID == "" {
			touched := false
			for i := range tab.Fields {
				if !isDefault(&tab.Fields[i]) {
					touched = true
					break
				}
			}
			if !touched {
				continue
			}
		}

		w := TabWrite{Tab: tab.Name, RowID: rowID}
		for i := range tab.Fields {
			f := &tab.Fields[i]
			w.Columns = append(w.Columns, f.Column)
			w.Values = append(w.Values, storedValue(f))
		}
		if rowID == "" {
			w.RowID = uuid.NewString()
			w.Insert = true
			plan.Links = append(plan.Links, Link{Tab: tab.Name, RowID: w.RowID})
		}
		plan.Tabs = append(plan.Tabs, w)
	}
	return plan
}
