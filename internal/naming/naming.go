// Package naming derives the physical identifiers used for tabs, fields and their
// enum types from operator-supplied labels.
package naming

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"clienttabs/internal/apperr"
)

// MaxIdentifierLength is the Postgres NAMEDATALEN limit minus the terminator.
const MaxIdentifierLength = 63

// Unset is the "no selection" marker surfaced for select fields. It is never stored.
const Unset = "---"

// RootTable holds one row per client and one foreign-key column per tab.
const (
	RootTable    = "clients"
	RootIDColumn = "client_id"
	RootCreated  = "created_at"
)

var reserved = map[string]bool{
	RootTable:    true,
	RootIDColumn: true,
	RootCreated:  true,
}

// CanonicalName lower-cases label, strips accents and collapses separators to "_".
func CanonicalName(label string) (string, error) {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.TrimSpace(label))
	if err != nil {
		return "", apperr.Validation(label, "name", fmt.Sprintf("cannot normalise %q: %v", label, err))
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			pendingSep = true
		}
	}

	name := b.String()
	if name == "" {
		return "", apperr.Validation(label, "name", fmt.Sprintf("%q does not contain any usable characters", label))
	}
	if name[0] >= '0' && name[0] <= '9' {
		return "", apperr.Validation(label, "name", fmt.Sprintf("%q must start with a letter", label))
	}
	if len(name) > MaxIdentifierLength {
		return "", apperr.Validation(label, "name", fmt.Sprintf("%q is longer than %d characters", label, MaxIdentifierLength))
	}
	return name, nil
}

// TabName canonicalises a tab label and rejects names owned by the root table.
func TabName(label string) (string, error) {
	name, err := CanonicalName(label)
	if err != nil {
		return "", err
	}
	if reserved[name] {
		return "", apperr.Validation(label, "reserved", fmt.Sprintf("%q is a reserved name", name))
	}
	// The id column must fit as well.
	if len(TabIDColumn(name)) > MaxIdentifierLength {
		return "", apperr.Validation(label, "name", fmt.Sprintf("%q is too long for a tab", label))
	}
	return name, nil
}

// TabIDColumn is the satellite table's primary key column.
func TabIDColumn(tab string) string { return tab + "_id" }

// TabPrimaryKey is the name of the satellite table's primary key constraint.
func TabPrimaryKey(tab string) string { return tab + "_pkey" }

// TabForeignKey is the name of the constraint on the root table referencing tab.
func TabForeignKey(tab string) string { return RootTable + "_" + tab + "_fkey" }

// FieldPhysicalName namespaces a field label under its tab.
func FieldPhysicalName(tab, fieldLabel string) (string, error) {
	tabName, err := CanonicalName(tab)
	if err != nil {
		return "", err
	}
	field, err := CanonicalName(fieldLabel)
	if err != nil {
		return "", err
	}
	name := tabName + "_" + field
	if len(name) > MaxIdentifierLength {
		return "", apperr.Validation(fieldLabel, "name", fmt.Sprintf("field name %q is longer than %d characters", name, MaxIdentifierLength))
	}
	return name, nil
}

// FieldShortName strips the tab namespace from a physical column name.
func FieldShortName(tab, column string) string {
	return strings.TrimPrefix(column, tab+"_")
}

// RenamedColumn re-namespaces column from oldTab to newTab. ok is false when the
// column does not belong to oldTab.
func RenamedColumn(oldTab, newTab, column string) (string, bool) {
	if !strings.HasPrefix(column, oldTab+"_") {
		return "", false
	}
	return newTab + "_" + FieldShortName(oldTab, column), true
}

// EnumTypeName is the enum type backing a select field: the physical name with its
// first letter upper-cased.
func EnumTypeName(fieldPhysicalName string) string {
	r, size := utf8.DecodeRuneInString(fieldPhysicalName)
	if r == utf8.RuneError {
		return fieldPhysicalName
	}
	return cases.Upper(language.Und).String(string(r)) + fieldPhysicalName[size:]
}

// Label renders a canonical name for display: "vehicle_info" -> "Vehicle Info".
func Label(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
