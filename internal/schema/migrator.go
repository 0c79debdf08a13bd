package schema

import (
	"context"
	"fmt"
	"strings"

	"clienttabs/internal/apperr"
	"clienttabs/internal/instrument"
	"clienttabs/internal/metadata"
	"clienttabs/internal/naming"
	"clienttabs/internal/store"
)

// maxEnumLabelLength is Postgres' NAMEDATALEN - 1, the longest allowed enum label.
const maxEnumLabelLength = 63

// FieldSpec is the caller's description of a field to create or update. For select
// fields Options[0] is a placeholder and is discarded.
type FieldSpec struct {
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Migrator applies schema mutations inside the caller's transaction. Every
// operation locks the tabs it touches, runs its DDL in order and records one
// journal entry; any failure is returned as is and the caller rolls back.
type Migrator struct {
	q       store.Querier
	catalog *Catalog
	meta    *metadata.Store
	journal instrument.Recorder
}

func NewMigrator(q store.Querier, journal instrument.Recorder) *Migrator {
	if journal == nil {
		journal = instrument.NoopRecorder{}
	}
	return &Migrator{
		q:       q,
		catalog: NewCatalog(q),
		meta:    metadata.NewStore(q),
		journal: journal,
	}
}

func (m *Migrator) exec(ctx context.Context, what, stmt string) error {
	if _, err := m.q.ExecContext(ctx, stmt); err != nil {
		return apperr.FromDB(what, err)
	}
	return nil
}

func (m *Migrator) record(ctx context.Context, ch instrument.Change) error {
	if err := m.journal.Record(ctx, m.q, ch); err != nil {
		return apperr.Mutation("record schema change", err)
	}
	return nil
}

func (m *Migrator) lock(ctx context.Context, tabs ...string) error {
	if err := store.LockTab(ctx, m.q, tabs...); err != nil {
		return apperr.Mutation("lock tab", err)
	}
	return nil
}

// allTables is the root table plus every tab table; field and tab column names
// must be unique across all of them because the wide client row joins them.
func (m *Migrator) allTables(ctx context.Context, except string) ([]string, []string, error) {
	tabs, err := m.catalog.ListTabs(ctx)
	if err != nil {
		return nil, nil, err
	}
	tables := []string{naming.RootTable}
	for _, t := range tabs {
		if t != except {
			tables = append(tables, t)
		}
	}
	return tables, tabs, nil
}

// CreateTab creates an empty tab: its satellite table and the foreign-key column
// on clients that points at it.
func (m *Migrator) CreateTab(ctx context.Context, label string) (*Tab, error) {
	if strings.TrimSpace(label) == "" {
		return nil, apperr.Validation("label", "required", "tab label is required")
	}
	name, err := naming.TabName(label)
	if err != nil {
		return nil, err
	}
	if err := m.lock(ctx, name); err != nil {
		return nil, err
	}
	if _, err := m.checkTabNameFree(ctx, name, ""); err != nil {
		return nil, err
	}

	idCol := naming.TabIDColumn(name)
	if err := m.exec(ctx, "create table "+name, fmt.Sprintf(
		"CREATE TABLE %s (%s UUID NOT NULL, CONSTRAINT %s PRIMARY KEY (%s))",
		store.Ident(name), store.Ident(idCol), store.Ident(naming.TabPrimaryKey(name)), store.Ident(idCol))); err != nil {
		return nil, err
	}
	if err := m.exec(ctx, "link tab "+name, fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN %s UUID NULL, ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		store.Ident(naming.RootTable), store.Ident(name), store.Ident(naming.TabForeignKey(name)),
		store.Ident(name), store.Ident(name), store.Ident(idCol))); err != nil {
		return nil, err
	}

	if err := m.record(ctx, instrument.Change{
		Action: instrument.ActionCreateTab,
		Tab:    name,
		Detail: map[string]any{"label": label},
	}); err != nil {
		return nil, err
	}
	return &Tab{Name: name, Label: naming.Label(name), Fields: []Field{}}, nil
}

// checkTabNameFree fails with Conflict when name is already a tab, a table, or a
// column that the tab's table or clients column would collide with. It returns
// the tables searched.
func (m *Migrator) checkTabNameFree(ctx context.Context, name, renaming string) ([]string, error) {
	tables, tabs, err := m.allTables(ctx, renaming)
	if err != nil {
		return nil, err
	}
	for _, t := range tabs {
		if t == name {
			return nil, apperr.Conflict(fmt.Sprintf("tab %s already exists", name))
		}
	}
	exists, err := m.catalog.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict(fmt.Sprintf("table %s already exists", name))
	}
	taken, err := m.catalog.ColumnExists(ctx, tables, []string{name, naming.TabIDColumn(name)})
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict(fmt.Sprintf("tab name %s collides with an existing column", name))
	}
	return tables, nil
}

// RenameTab moves a tab and everything derived from its name to a new name. The
// table goes first; the constraint, id column, clients column, field columns and
// enum types follow, then the metadata rows.
func (m *Migrator) RenameTab(ctx context.Context, oldLabel, newLabel string) (*Tab, error) {
	if strings.TrimSpace(newLabel) == "" {
		return nil, apperr.Validation("label", "required", "tab label is required")
	}
	oldName, err := naming.CanonicalName(oldLabel)
	if err != nil {
		return nil, err
	}
	newName, err := naming.TabName(newLabel)
	if err != nil {
		return nil, err
	}
	if err := m.lock(ctx, oldName, newName); err != nil {
		return nil, err
	}
	if err := m.catalog.RequireTab(ctx, oldName); err != nil {
		return nil, err
	}
	if oldName == newName {
		return m.tab(ctx, oldName)
	}
	tables, err := m.checkTabNameFree(ctx, newName, oldName)
	if err != nil {
		return nil, err
	}

	cols, err := m.catalog.GetTableColumns(ctx, oldName)
	if err != nil {
		return nil, err
	}
	// The id column was already checked with the tab name.
	var fieldCols []string
	for _, col := range cols {
		if col.Name == naming.TabIDColumn(oldName) {
			continue
		}
		renamed, ok := naming.RenamedColumn(oldName, newName, col.Name)
		if !ok {
			continue
		}
		if len(renamed) > naming.MaxIdentifierLength {
			return nil, apperr.Validation("label", "name",
				fmt.Sprintf("renaming would make column %s longer than %d characters", renamed, naming.MaxIdentifierLength))
		}
		fieldCols = append(fieldCols, renamed)
	}
	if len(fieldCols) > 0 {
		taken, err := m.catalog.ColumnExists(ctx, tables, fieldCols)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict(fmt.Sprintf("renaming tab %s to %s would collide with an existing field column", oldName, newName))
		}
	}

	steps := []struct{ what, stmt string }{
		{"rename table " + oldName, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			store.Ident(oldName), store.Ident(newName))},
		{"rename primary key of " + oldName, fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
			store.Ident(newName), store.Ident(naming.TabPrimaryKey(oldName)), store.Ident(naming.TabPrimaryKey(newName)))},
		{"rename id column of " + oldName, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			store.Ident(newName), store.Ident(naming.TabIDColumn(oldName)), store.Ident(naming.TabIDColumn(newName)))},
		{"rename clients column " + oldName, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			store.Ident(naming.RootTable), store.Ident(oldName), store.Ident(newName))},
		{"rename foreign key of " + oldName, fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
			store.Ident(naming.RootTable), store.Ident(naming.TabForeignKey(oldName)), store.Ident(naming.TabForeignKey(newName)))},
	}
	for _, s := range steps {
		if err := m.exec(ctx, s.what, s.stmt); err != nil {
			return nil, err
		}
	}

	idCol := naming.TabIDColumn(oldName)
	for _, col := range cols {
		if col.Name == idCol {
			continue
		}
		renamed, ok := naming.RenamedColumn(oldName, newName, col.Name)
		if !ok {
			continue
		}
		if err := m.exec(ctx, "rename column "+col.Name, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			store.Ident(newName), store.Ident(col.Name), store.Ident(renamed))); err != nil {
			return nil, err
		}
		if col.EnumType != "" {
			if err := m.renameEnum(ctx, col.EnumType, naming.EnumTypeName(renamed)); err != nil {
				return nil, err
			}
		}
	}

	if err := m.meta.RenameTab(ctx, oldName, newName); err != nil {
		return nil, apperr.Mutation("rename tab metadata", err)
	}
	if err := m.record(ctx, instrument.Change{
		Action: instrument.ActionRenameTab,
		Tab:    newName,
		Detail: map[string]any{"from": oldName},
	}); err != nil {
		return nil, err
	}
	return m.tab(ctx, newName)
}

func (m *Migrator) renameEnum(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	if err := m.dropOrphanEnum(ctx, to); err != nil {
		return err
	}
	return m.exec(ctx, "rename enum "+from, fmt.Sprintf("ALTER TYPE %s RENAME TO %s",
		store.Ident(from), store.Ident(to)))
}

// dropOrphanEnum removes an enum type left behind by a deleted field so that a new
// field can reuse its name. A type still used by a column is a conflict.
func (m *Migrator) dropOrphanEnum(ctx context.Context, typeName string) error {
	exists, used, err := m.catalog.EnumStatus(ctx, typeName)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if used {
		return apperr.Conflict(fmt.Sprintf("enum type %s is already in use", typeName))
	}
	return m.exec(ctx, "drop orphaned enum "+typeName, "DROP TYPE "+store.Ident(typeName))
}

func (m *Migrator) tab(ctx context.Context, name string) (*Tab, error) {
	fields, err := m.catalog.ListFields(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Tab{Name: name, Label: naming.Label(name), Fields: fields}, nil
}

// DeleteTab drops the clients column, the satellite table and the tab's metadata.
// Enum types of its select fields are left in place.
func (m *Migrator) DeleteTab(ctx context.Context, label string) error {
	name, err := naming.CanonicalName(label)
	if err != nil {
		return err
	}
	if err := m.lock(ctx, name); err != nil {
		return err
	}
	if err := m.catalog.RequireTab(ctx, name); err != nil {
		return err
	}

	if err := m.exec(ctx, "unlink tab "+name, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		store.Ident(naming.RootTable), store.Ident(name))); err != nil {
		return err
	}
	if err := m.exec(ctx, "drop table "+name, "DROP TABLE "+store.Ident(name)); err != nil {
		return err
	}
	if err := m.meta.DeleteTab(ctx, name); err != nil {
		return apperr.Mutation("delete tab metadata", err)
	}
	return m.record(ctx, instrument.Change{Action: instrument.ActionDeleteTab, Tab: name})
}

// selectValues validates a select option list and returns the values to store,
// with the leading placeholder removed.
func selectValues(label string, options []string) ([]string, error) {
	if len(options) < 2 {
		return nil, apperr.Validation(label, "options",
			fmt.Sprintf("select field %s needs at least one option after the placeholder", label))
	}
	values := make([]string, 0, len(options)-1)
	seen := make(map[string]bool, len(options)-1)
	for _, v := range options[1:] {
		switch {
		case strings.TrimSpace(v) == "":
			return nil, apperr.Validation(label, "options", "select options must not be blank")
		case v == naming.Unset:
			return nil, apperr.Validation(label, "options", fmt.Sprintf("%q is reserved for an unset selection", naming.Unset))
		case len(v) > maxEnumLabelLength:
			return nil, apperr.Validation(label, "options", fmt.Sprintf("option %q is longer than %d bytes", v, maxEnumLabelLength))
		case seen[v]:
			return nil, apperr.Validation(label, "options", fmt.Sprintf("option %q is listed twice", v))
		}
		seen[v] = true
		values = append(values, v)
	}
	return values, nil
}

func enumLiterals(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = store.Literal(v)
	}
	return strings.Join(quoted, ", ")
}

// CreateField adds a column to a tab, creating the enum type first for select
// fields, and records the field's position.
func (m *Migrator) CreateField(ctx context.Context, tab string, spec FieldSpec) (*Field, error) {
	if strings.TrimSpace(tab) == "" {
		return nil, apperr.Validation("tab", "required", "tab is required")
	}
	if strings.TrimSpace(spec.Label) == "" {
		return nil, apperr.Validation("label", "required", "field label is required")
	}
	tabName, err := naming.CanonicalName(tab)
	if err != nil {
		return nil, err
	}
	ft, err := metadata.ParseFieldType(spec.Type)
	if err != nil {
		return nil, err
	}
	column, err := naming.FieldPhysicalName(tabName, spec.Label)
	if err != nil {
		return nil, err
	}
	var values []string
	if ft.UsesEnum() {
		if values, err = selectValues(spec.Label, spec.Options); err != nil {
			return nil, err
		}
	}

	if err := m.lock(ctx, tabName); err != nil {
		return nil, err
	}
	if err := m.catalog.RequireTab(ctx, tabName); err != nil {
		return nil, err
	}
	tables, _, err := m.allTables(ctx, "")
	if err != nil {
		return nil, err
	}
	taken, err := m.catalog.ColumnExists(ctx, tables, []string{column})
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict(fmt.Sprintf("field %s already exists", column))
	}

	enumType := ""
	if ft.UsesEnum() {
		enumType = naming.EnumTypeName(column)
		if err := m.dropOrphanEnum(ctx, enumType); err != nil {
			return nil, err
		}
		if err := m.exec(ctx, "create enum "+enumType, fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)",
			store.Ident(enumType), enumLiterals(values))); err != nil {
			return nil, err
		}
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s DEFAULT %s",
		store.Ident(tabName), store.Ident(column), ft.ColumnType(enumType), ft.ColumnDefault(values))
	if spec.Required {
		stmt += " NOT NULL"
	}
	if err := m.exec(ctx, "add field "+column, stmt); err != nil {
		return nil, err
	}

	cols, err := m.catalog.GetTableColumns(ctx, tabName)
	if err != nil {
		return nil, err
	}
	// The id column and the column just added are not counted.
	position := len(cols) - 2
	label := strings.TrimSpace(spec.Label)
	if err := m.meta.RecordFieldCreated(ctx, tabName, column, label, position); err != nil {
		return nil, apperr.Mutation("record field position", err)
	}

	if err := m.record(ctx, instrument.Change{
		Action: instrument.ActionCreateField,
		Tab:    tabName,
		Field:  column,
		Detail: map[string]any{"type": string(ft), "required": spec.Required, "options": values},
	}); err != nil {
		return nil, err
	}

	short := naming.FieldShortName(tabName, column)
	f := &Field{
		Name:     short,
		Column:   column,
		Label:    label,
		Type:     ft,
		Required: spec.Required,
		Position: position,
		Default:  ft.Zero(),
		Value:    ft.Zero(),
	}
	if ft.UsesEnum() {
		f.Options = append([]string{naming.Unset}, values...)
	}
	return f, nil
}

type enumAddition struct {
	Value  string
	After  string
	Before string
}

// planEnumAdditions returns the values of target missing from stored, each anchored
// after its predecessor in target. Nothing is planned unless target is strictly
// longer than stored; stored values are never removed or moved.
func planEnumAdditions(stored, target []string) []enumAddition {
	if len(target) <= len(stored) {
		return nil
	}
	have := make(map[string]bool, len(target))
	for _, v := range stored {
		have[v] = true
	}

	var out []enumAddition
	for i, v := range target {
		if have[v] {
			continue
		}
		add := enumAddition{Value: v}
		switch {
		case i > 0:
			add.After = target[i-1]
		case len(stored) > 0:
			add.Before = stored[0]
		}
		out = append(out, add)
		have[v] = true
	}
	return out
}

func (a enumAddition) statement(enumType string) string {
	stmt := fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS %s", store.Ident(enumType), store.Literal(a.Value))
	switch {
	case a.After != "":
		stmt += " AFTER " + store.Literal(a.After)
	case a.Before != "":
		stmt += " BEFORE " + store.Literal(a.Before)
	}
	return stmt
}

// UpdateField renames a field when its label changes, syncs NOT NULL with the
// required flag and, for select fields, appends new options. The field type
// cannot change.
func (m *Migrator) UpdateField(ctx context.Context, tab, field string, spec FieldSpec) (*Field, error) {
	if strings.TrimSpace(tab) == "" {
		return nil, apperr.Validation("tab", "required", "tab is required")
	}
	if strings.TrimSpace(spec.Label) == "" {
		return nil, apperr.Validation("label", "required", "field label is required")
	}
	tabName, err := naming.CanonicalName(tab)
	if err != nil {
		return nil, err
	}
	column, err := naming.FieldPhysicalName(tabName, field)
	if err != nil {
		return nil, err
	}
	newColumn, err := naming.FieldPhysicalName(tabName, spec.Label)
	if err != nil {
		return nil, err
	}

	if err := m.lock(ctx, tabName); err != nil {
		return nil, err
	}
	if err := m.catalog.RequireTab(ctx, tabName); err != nil {
		return nil, err
	}
	cols, err := m.catalog.GetTableColumns(ctx, tabName)
	if err != nil {
		return nil, err
	}
	var current *Column
	for i := range cols {
		if cols[i].Name == column && column != naming.TabIDColumn(tabName) {
			current = &cols[i]
			break
		}
	}
	if current == nil {
		return nil, apperr.NotFound("field", column)
	}
	ft, ok := metadata.FieldTypeFromCatalog(current.SQLType)
	if !ok {
		return nil, apperr.SchemaReflection(fmt.Sprintf("column %s has unsupported type %s", column, current.SQLType), nil)
	}
	if strings.TrimSpace(spec.Type) != "" {
		want, err := metadata.ParseFieldType(spec.Type)
		if err != nil {
			return nil, err
		}
		if want != ft {
			return nil, apperr.Validation("type", "immutable", fmt.Sprintf("field %s is %s and cannot become %s", column, ft, want))
		}
	}
	var values []string
	if ft.UsesEnum() {
		if values, err = selectValues(spec.Label, spec.Options); err != nil {
			return nil, err
		}
	}

	detail := map[string]any{}
	enumType := current.EnumType
	if newColumn != column {
		tables, _, err := m.allTables(ctx, "")
		if err != nil {
			return nil, err
		}
		taken, err := m.catalog.ColumnExists(ctx, tables, []string{newColumn})
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict(fmt.Sprintf("field %s already exists", newColumn))
		}
		if err := m.exec(ctx, "rename field "+column, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			store.Ident(tabName), store.Ident(column), store.Ident(newColumn))); err != nil {
			return nil, err
		}
		if ft.UsesEnum() {
			if err := m.renameEnum(ctx, enumType, naming.EnumTypeName(newColumn)); err != nil {
				return nil, err
			}
			enumType = naming.EnumTypeName(newColumn)
		}
		if err := m.meta.RenameField(ctx, column, newColumn); err != nil {
			return nil, apperr.Mutation("rename field metadata", err)
		}
		detail["from"] = column
	}

	if spec.Required != !current.IsNullable {
		action := "DROP NOT NULL"
		if spec.Required {
			action = "SET NOT NULL"
		}
		if err := m.exec(ctx, "change required flag of "+newColumn, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s",
			store.Ident(tabName), store.Ident(newColumn), action)); err != nil {
			return nil, err
		}
		detail["required"] = spec.Required
	}

	if ft.UsesEnum() {
		stored, err := m.catalog.StoredEnumValues(ctx, enumType)
		if err != nil {
			return nil, err
		}
		var added []string
		for _, a := range planEnumAdditions(stored, values) {
			if err := m.exec(ctx, "add option "+a.Value, a.statement(enumType)); err != nil {
				return nil, err
			}
			added = append(added, a.Value)
		}
		if len(added) > 0 {
			detail["added_options"] = added
		}
	}

	if err := m.meta.SetLabel(ctx, tabName, newColumn, strings.TrimSpace(spec.Label)); err != nil {
		return nil, apperr.Mutation("set field label", err)
	}
	if err := m.record(ctx, instrument.Change{
		Action: instrument.ActionUpdateField,
		Tab:    tabName,
		Field:  newColumn,
		Detail: detail,
	}); err != nil {
		return nil, err
	}
	return m.catalog.GetFieldSchema(ctx, tabName, naming.FieldShortName(tabName, newColumn))
}

// DeleteField drops the column and its metadata row. A select field's enum type
// stays behind.
func (m *Migrator) DeleteField(ctx context.Context, tab, field string) error {
	tabName, err := naming.CanonicalName(tab)
	if err != nil {
		return err
	}
	column, err := naming.FieldPhysicalName(tabName, field)
	if err != nil {
		return err
	}
	if err := m.lock(ctx, tabName); err != nil {
		return err
	}
	if err := m.catalog.RequireTab(ctx, tabName); err != nil {
		return err
	}
	if column == naming.TabIDColumn(tabName) {
		return apperr.NotFound("field", column)
	}
	cols, err := m.catalog.GetTableColumns(ctx, tabName)
	if err != nil {
		return err
	}
	found := false
	for _, c := range cols {
		if c.Name == column {
			found = true
			break
		}
	}
	if !found {
		return apperr.NotFound("field", column)
	}

	if err := m.exec(ctx, "drop field "+column, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		store.Ident(tabName), store.Ident(column))); err != nil {
		return err
	}
	if err := m.meta.DeleteField(ctx, tabName, column); err != nil {
		return apperr.Mutation("delete field metadata", err)
	}
	return m.record(ctx, instrument.Change{Action: instrument.ActionDeleteField, Tab: tabName, Field: column})
}

// ReorderFields sets the display order of a tab's fields. fields lists every
// field of the tab by short name.
func (m *Migrator) ReorderFields(ctx context.Context, tab string, fields []string) ([]Field, error) {
	tabName, err := naming.CanonicalName(tab)
	if err != nil {
		return nil, err
	}
	if err := m.lock(ctx, tabName); err != nil {
		return nil, err
	}
	if err := m.catalog.RequireTab(ctx, tabName); err != nil {
		return nil, err
	}

	columns := make([]string, len(fields))
	for i, f := range fields {
		if columns[i], err = naming.FieldPhysicalName(tabName, f); err != nil {
			return nil, err
		}
	}
	if err := m.meta.Reorder(ctx, tabName, columns); err != nil {
		if apperr.Is(err, apperr.CodeValidation) {
			return nil, err
		}
		return nil, apperr.Mutation("reorder fields", err)
	}
	if err := m.record(ctx, instrument.Change{
		Action: instrument.ActionReorder,
		Tab:    tabName,
		Detail: map[string]any{"fields": columns},
	}); err != nil {
		return nil, err
	}
	return m.catalog.ListFields(ctx, tabName)
}
