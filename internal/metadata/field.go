package metadata

import (
	"fmt"
	"strings"

	"clienttabs/internal/apperr"
	"clienttabs/internal/config"
	"clienttabs/internal/naming"
	"clienttabs/internal/store"
)

// FieldType is the closed set of field kinds an operator can add to a tab.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeMultiline FieldType = "multiline"
	TypeBoolean   FieldType = "boolean"
	TypeSelect    FieldType = "select"
)

// fieldKind describes how a FieldType is realised as a column. New field types are
// added here and nowhere else.
type fieldKind struct {
	// catalogType is information_schema.columns.data_type for the column.
	catalogType string
	// columnType renders the DDL type; enumType is only set for enum-backed kinds.
	columnType func(enumType string) string
	// zero is the value surfaced for a client that never set the field.
	zero any
	// usesEnum means the column is backed by its own enum type.
	usesEnum bool
}

var fieldKinds = map[FieldType]fieldKind{
	TypeText: {
		catalogType: "character varying",
		columnType:  func(string) string { return fmt.Sprintf("VARCHAR(%d)", config.TextMaxLength()) },
		zero:        "",
	},
	TypeMultiline: {
		catalogType: "text",
		columnType:  func(string) string { return "TEXT" },
		zero:        "",
	},
	TypeBoolean: {
		catalogType: "boolean",
		columnType:  func(string) string { return "BOOLEAN" },
		zero:        false,
	},
	TypeSelect: {
		catalogType: "USER-DEFINED",
		columnType:  func(enumType string) string { return store.Ident(enumType) },
		zero:        naming.Unset,
		usesEnum:    true,
	},
}

// ParseFieldType validates a type name received from a caller.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fieldKinds[t]; !ok {
		return "", apperr.Validation("type", "type", fmt.Sprintf("unknown field type %q", s))
	}
	return t, nil
}

// FieldTypeFromCatalog maps a reflected column back to its field type.
func FieldTypeFromCatalog(dataType string) (FieldType, bool) {
	for t, k := range fieldKinds {
		if k.catalogType == dataType {
			return t, true
		}
	}
	return "", false
}

// ColumnType is the DDL type of a column holding this field type.
func (t FieldType) ColumnType(enumType string) string {
	return fieldKinds[t].columnType(enumType)
}

// Zero is the logical value of an unset field.
func (t FieldType) Zero() any {
	return fieldKinds[t].zero
}

// UsesEnum reports whether the field is backed by its own enum type.
func (t FieldType) UsesEnum() bool {
	return fieldKinds[t].usesEnum
}

// ColumnDefault renders the DEFAULT expression for a new column. values are the
// enum values stored for select fields (placeholder already removed).
func (t FieldType) ColumnDefault(values []string) string {
	switch t {
	case TypeBoolean:
		return "false"
	case TypeSelect:
		if len(values) == 0 {
			return "NULL"
		}
		return store.Literal(values[0])
	default:
		return store.Literal("")
	}
}
