package schema

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clienttabs/internal/apperr"
	"clienttabs/internal/instrument"
)

func newMigrator(t *testing.T) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMock(t)
	return NewMigrator(db, instrument.NewJournal()), mock
}

func TestCreateTab(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock)
	expectTableExists(mock, "vehicle_info", false)
	expectColumnExists(mock, false)
	expectDDL(mock, `CREATE TABLE "vehicle_info" ("vehicle_info_id" UUID NOT NULL, CONSTRAINT "vehicle_info_pkey" PRIMARY KEY ("vehicle_info_id"))`)
	expectDDL(mock, `ALTER TABLE "clients" ADD COLUMN "vehicle_info" UUID NULL, ADD CONSTRAINT "clients_vehicle_info_fkey" FOREIGN KEY ("vehicle_info") REFERENCES "vehicle_info" ("vehicle_info_id")`)
	expectJournal(mock, instrument.ActionCreateTab, "vehicle_info")

	tab, err := m.CreateTab(context.Background(), "Vehicle Info")
	require.NoError(t, err)
	assert.Equal(t, "vehicle_info", tab.Name)
	assert.Equal(t, "Vehicle Info", tab.Label)
	assert.Empty(t, tab.Fields)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTab_AliasedLabelConflicts(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")

	_, err := m.CreateTab(context.Background(), "  VEHICLE-info ")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTab_ExistingTableConflicts(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "notes")
	expectTabs(mock)
	expectTableExists(mock, "notes", true)

	_, err := m.CreateTab(context.Background(), "Notes")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTab_RejectsBlankAndReserved(t *testing.T) {
	m, mock := newMigrator(t)

	_, err := m.CreateTab(context.Background(), "   ")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = m.CreateTab(context.Background(), "Clients")
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameTab(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "car", "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTableExists(mock, "car", false)
	expectColumnExists(mock, false)
	expectColumns(mock, "vehicle_info",
		idColumn("vehicle_info"),
		textCol("vehicle_info_make", false),
		enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectColumnExists(mock, false)

	expectDDL(mock, `ALTER TABLE "vehicle_info" RENAME TO "car"`)
	expectDDL(mock, `ALTER TABLE "car" RENAME CONSTRAINT "vehicle_info_pkey" TO "car_pkey"`)
	expectDDL(mock, `ALTER TABLE "car" RENAME COLUMN "vehicle_info_id" TO "car_id"`)
	expectDDL(mock, `ALTER TABLE "clients" RENAME COLUMN "vehicle_info" TO "car"`)
	expectDDL(mock, `ALTER TABLE "clients" RENAME CONSTRAINT "clients_vehicle_info_fkey" TO "clients_car_fkey"`)
	expectDDL(mock, `ALTER TABLE "car" RENAME COLUMN "vehicle_info_make" TO "car_make"`)
	expectDDL(mock, `ALTER TABLE "car" RENAME COLUMN "vehicle_info_color" TO "car_color"`)
	expectEnumStatus(mock, "Car_color", false, false)
	expectDDL(mock, `ALTER TYPE "Vehicle_info_color" RENAME TO "Car_color"`)
	mock.ExpectExec(q("UPDATE _field_metadata")).
		WithArgs("vehicle_info", "car").
		WillReturnResult(sqlmock.NewResult(0, 2))
	expectJournal(mock, instrument.ActionRenameTab, "car")

	expectColumns(mock, "car",
		idColumn("car"),
		textCol("car_make", false),
		enumCol("car_color", "Car_color"))
	expectPositions(mock, "car", "car_make", "car_color")
	expectEnum(mock, "Car_color", "Blue", "Red")

	tab, err := m.RenameTab(context.Background(), "vehicle_info", "Car")
	require.NoError(t, err)
	assert.Equal(t, "car", tab.Name)
	require.Len(t, tab.Fields, 2)
	for i, f := range tab.Fields {
		assert.Equal(t, i, f.Position)
		assert.NotContains(t, f.Column, "vehicle_info")
	}
	assert.Equal(t, "car_make", tab.Fields[0].Column)
	assert.Equal(t, "car_color", tab.Fields[1].Column)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameTab_FieldColumnTaken(t *testing.T) {
	m, mock := newMigrator(t)

	// w_y would become x_y, which is the clients column of tab x_y.
	expectLock(mock, "w", "x")
	expectTabs(mock, "w", "x_y")
	expectTabs(mock, "w", "x_y")
	expectTableExists(mock, "x", false)
	expectColumnExists(mock, false)
	expectColumns(mock, "w", idColumn("w"), textCol("w_y", true))
	mock.ExpectQuery(q("column_name = ANY($2)")).
		WithArgs(sqlmock.AnyArg(), pq.Array([]string{"x_y"})).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := m.RenameTab(context.Background(), "w", "x")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameTab_UnknownTab(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "car", "vehicle_info")
	expectTabs(mock, "billing")

	_, err := m.RenameTab(context.Background(), "vehicle_info", "car")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTab(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectDDL(mock, `ALTER TABLE "clients" DROP COLUMN "vehicle_info"`)
	expectDDL(mock, `DROP TABLE "vehicle_info"`)
	mock.ExpectExec(q("DELETE FROM _field_metadata WHERE tab_name = $1")).
		WithArgs("vehicle_info").
		WillReturnResult(sqlmock.NewResult(0, 2))
	expectJournal(mock, instrument.ActionDeleteTab, "vehicle_info")

	require.NoError(t, m.DeleteTab(context.Background(), "Vehicle Info"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTab_Unknown(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "billing")
	expectTabs(mock, "vehicle_info")

	err := m.DeleteTab(context.Background(), "billing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField_Select(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, false)
	expectEnumStatus(mock, "Vehicle_info_color", false, false)
	expectDDL(mock, `CREATE TYPE "Vehicle_info_color" AS ENUM ('B', 'C')`)
	expectDDL(mock, `ALTER TABLE "vehicle_info" ADD COLUMN "vehicle_info_color" "Vehicle_info_color" DEFAULT 'B'`)
	expectColumns(mock, "vehicle_info",
		idColumn("vehicle_info"),
		enumCol("vehicle_info_color", "Vehicle_info_color"))
	mock.ExpectExec(q("INSERT INTO _field_metadata")).
		WithArgs(sqlmock.AnyArg(), "vehicle_info", "vehicle_info_color", "Color", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectJournal(mock, instrument.ActionCreateField, "vehicle_info")

	f, err := m.CreateField(context.Background(), "vehicle_info", FieldSpec{
		Label:   "Color",
		Type:    "select",
		Options: []string{"A", "B", "C"},
	})
	require.NoError(t, err)
	assert.Equal(t, "color", f.Name)
	assert.Equal(t, []string{"---", "B", "C"}, f.Options)
	assert.Equal(t, "---", f.Default)
	assert.Equal(t, 0, f.Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField_RequiredText(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, false)
	expectDDL(mock, `ALTER TABLE "vehicle_info" ADD COLUMN "vehicle_info_make" VARCHAR(255) DEFAULT '' NOT NULL`)
	expectColumns(mock, "vehicle_info",
		idColumn("vehicle_info"),
		textCol("vehicle_info_model", true),
		textCol("vehicle_info_make", false))
	mock.ExpectExec(q("INSERT INTO _field_metadata")).
		WithArgs(sqlmock.AnyArg(), "vehicle_info", "vehicle_info_make", "Make", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectJournal(mock, instrument.ActionCreateField, "vehicle_info")

	f, err := m.CreateField(context.Background(), "Vehicle Info", FieldSpec{Label: "Make", Type: "text", Required: true})
	require.NoError(t, err)
	assert.Equal(t, "vehicle_info_make", f.Column)
	assert.Equal(t, "Make", f.Label)
	assert.Equal(t, 1, f.Position)
	assert.True(t, f.Required)
	assert.Nil(t, f.Options)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField_KeepsTypedLabel(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, false)
	expectDDL(mock, `ALTER TABLE "vehicle_info" ADD COLUMN "vehicle_info_e_mail" VARCHAR(255) DEFAULT ''`)
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), textCol("vehicle_info_e_mail", true))
	mock.ExpectExec(q("INSERT INTO _field_metadata")).
		WithArgs(sqlmock.AnyArg(), "vehicle_info", "vehicle_info_e_mail", "E-mail", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectJournal(mock, instrument.ActionCreateField, "vehicle_info")

	f, err := m.CreateField(context.Background(), "vehicle_info", FieldSpec{Label: " E-mail ", Type: "text"})
	require.NoError(t, err)
	assert.Equal(t, "e_mail", f.Name)
	assert.Equal(t, "E-mail", f.Label)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField_DropsOrphanedEnum(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, false)
	expectEnumStatus(mock, "Vehicle_info_color", true, false)
	expectDDL(mock, `DROP TYPE "Vehicle_info_color"`)
	expectDDL(mock, `CREATE TYPE "Vehicle_info_color" AS ENUM ('Red')`)
	expectDDL(mock, `ALTER TABLE "vehicle_info" ADD COLUMN "vehicle_info_color" "Vehicle_info_color" DEFAULT 'Red'`)
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	mock.ExpectExec(q("INSERT INTO _field_metadata")).WillReturnResult(sqlmock.NewResult(0, 1))
	expectJournal(mock, instrument.ActionCreateField, "vehicle_info")

	_, err := m.CreateField(context.Background(), "vehicle_info", FieldSpec{
		Label: "color", Type: "select", Options: []string{"---", "Red"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField_Conflict(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, true)

	_, err := m.CreateField(context.Background(), "vehicle_info", FieldSpec{Label: "Make", Type: "text"})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateField_Validation(t *testing.T) {
	m, mock := newMigrator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		tab  string
		spec FieldSpec
	}{
		{"blank tab", " ", FieldSpec{Label: "Make", Type: "text"}},
		{"blank label", "vehicle_info", FieldSpec{Label: "", Type: "text"}},
		{"unknown type", "vehicle_info", FieldSpec{Label: "Make", Type: "integer"}},
		{"select without options", "vehicle_info", FieldSpec{Label: "Color", Type: "select"}},
		{"select with only the placeholder", "vehicle_info", FieldSpec{Label: "Color", Type: "select", Options: []string{"Pick one"}}},
		{"duplicate options", "vehicle_info", FieldSpec{Label: "Color", Type: "select", Options: []string{"-", "Red", "Red"}}},
		{"unset marker as option", "vehicle_info", FieldSpec{Label: "Color", Type: "select", Options: []string{"-", "---"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CreateField(ctx, tc.tab, tc.spec)
			assert.True(t, apperr.Is(err, apperr.CodeValidation), "got %v", err)
		})
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanEnumAdditions(t *testing.T) {
	cases := []struct {
		name   string
		stored []string
		target []string
		want   []enumAddition
	}{
		{"same length", []string{"B", "C"}, []string{"B", "X"}, nil},
		{"shorter drops nothing", []string{"B", "C", "D"}, []string{"B", "D"}, nil},
		{"append at end", []string{"B", "C"}, []string{"B", "C", "D"}, []enumAddition{{Value: "D", After: "C"}}},
		{"insert in between", []string{"B", "C"}, []string{"B", "X", "C", "Y"}, []enumAddition{
			{Value: "X", After: "B"},
			{Value: "Y", After: "C"},
		}},
		{"insert first", []string{"B"}, []string{"A", "B"}, []enumAddition{{Value: "A", Before: "B"}}},
		{"chain of new values", []string{"B"}, []string{"B", "X", "Y"}, []enumAddition{
			{Value: "X", After: "B"},
			{Value: "Y", After: "X"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, planEnumAdditions(tc.stored, tc.target))
		})
	}
}

func TestUpdateField_SelectNeverRemovesValues(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectEnum(mock, "Vehicle_info_color", "B", "C", "D")
	expectLabel(mock, "vehicle_info", "vehicle_info_color", "Color")
	expectJournal(mock, instrument.ActionUpdateField, "vehicle_info")

	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectPositions(mock, "vehicle_info", "vehicle_info_color")
	expectEnum(mock, "Vehicle_info_color", "B", "C", "D")

	f, err := m.UpdateField(context.Background(), "vehicle_info", "color", FieldSpec{
		Label: "Color", Type: "select", Options: []string{"---", "B", "D"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"---", "B", "C", "D"}, f.Options)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_SelectAppendsValues(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectEnum(mock, "Vehicle_info_color", "B", "C")
	expectDDL(mock, `ALTER TYPE "Vehicle_info_color" ADD VALUE IF NOT EXISTS 'X' AFTER 'B'`)
	expectDDL(mock, `ALTER TYPE "Vehicle_info_color" ADD VALUE IF NOT EXISTS 'Y' AFTER 'C'`)
	expectLabel(mock, "vehicle_info", "vehicle_info_color", "Color")
	expectJournal(mock, instrument.ActionUpdateField, "vehicle_info")

	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectPositions(mock, "vehicle_info", "vehicle_info_color")
	expectEnum(mock, "Vehicle_info_color", "B", "X", "C", "Y")

	f, err := m.UpdateField(context.Background(), "vehicle_info", "color", FieldSpec{
		Label: "Color", Options: []string{"---", "B", "X", "C", "Y"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"---", "B", "X", "C", "Y"}, f.Options)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_RenameAndRequire(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), textCol("vehicle_info_make", true))
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, false)
	expectDDL(mock, `ALTER TABLE "vehicle_info" RENAME COLUMN "vehicle_info_make" TO "vehicle_info_brand"`)
	mock.ExpectExec(q("UPDATE _field_metadata SET field_name = $2 WHERE field_name = $1")).
		WithArgs("vehicle_info_make", "vehicle_info_brand").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectDDL(mock, `ALTER TABLE "vehicle_info" ALTER COLUMN "vehicle_info_brand" SET NOT NULL`)
	expectLabel(mock, "vehicle_info", "vehicle_info_brand", "Brand")
	expectJournal(mock, instrument.ActionUpdateField, "vehicle_info")

	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), textCol("vehicle_info_brand", false))
	expectPositions(mock, "vehicle_info", "vehicle_info_brand")

	f, err := m.UpdateField(context.Background(), "vehicle_info", "make", FieldSpec{Label: "Brand", Required: true})
	require.NoError(t, err)
	assert.Equal(t, "brand", f.Name)
	assert.True(t, f.Required)
	assert.Equal(t, 0, f.Position)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_RenameSelectRenamesEnum(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectTabs(mock, "vehicle_info")
	expectColumnExists(mock, false)
	expectDDL(mock, `ALTER TABLE "vehicle_info" RENAME COLUMN "vehicle_info_color" TO "vehicle_info_paint"`)
	expectEnumStatus(mock, "Vehicle_info_paint", false, false)
	expectDDL(mock, `ALTER TYPE "Vehicle_info_color" RENAME TO "Vehicle_info_paint"`)
	mock.ExpectExec(q("UPDATE _field_metadata SET field_name = $2")).
		WithArgs("vehicle_info_color", "vehicle_info_paint").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectEnum(mock, "Vehicle_info_paint", "B", "C")
	expectLabel(mock, "vehicle_info", "vehicle_info_paint", "Paint")
	expectJournal(mock, instrument.ActionUpdateField, "vehicle_info")

	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_paint", "Vehicle_info_paint"))
	expectPositions(mock, "vehicle_info", "vehicle_info_paint")
	expectEnum(mock, "Vehicle_info_paint", "B", "C")

	f, err := m.UpdateField(context.Background(), "vehicle_info", "color", FieldSpec{
		Label: "Paint", Options: []string{"---", "B", "C"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vehicle_info_paint", f.Column)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateField_Errors(t *testing.T) {
	t.Run("unknown field", func(t *testing.T) {
		m, mock := newMigrator(t)
		expectLock(mock, "vehicle_info")
		expectTabs(mock, "vehicle_info")
		expectColumns(mock, "vehicle_info", idColumn("vehicle_info"))

		_, err := m.UpdateField(context.Background(), "vehicle_info", "make", FieldSpec{Label: "Make"})
		assert.True(t, apperr.Is(err, apperr.CodeNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("type change", func(t *testing.T) {
		m, mock := newMigrator(t)
		expectLock(mock, "vehicle_info")
		expectTabs(mock, "vehicle_info")
		expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), textCol("vehicle_info_make", true))

		_, err := m.UpdateField(context.Background(), "vehicle_info", "make", FieldSpec{Label: "Make", Type: "boolean"})
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("select options too short", func(t *testing.T) {
		m, mock := newMigrator(t)
		expectLock(mock, "vehicle_info")
		expectTabs(mock, "vehicle_info")
		expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))

		_, err := m.UpdateField(context.Background(), "vehicle_info", "color", FieldSpec{Label: "Color", Options: []string{"---"}})
		assert.True(t, apperr.Is(err, apperr.CodeValidation))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteField_KeepsEnumType(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectColumns(mock, "vehicle_info", idColumn("vehicle_info"), enumCol("vehicle_info_color", "Vehicle_info_color"))
	expectDDL(mock, `ALTER TABLE "vehicle_info" DROP COLUMN "vehicle_info_color"`)
	mock.ExpectQuery(q("DELETE FROM _field_metadata")).
		WithArgs("vehicle_info", "vehicle_info_color").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(0))
	mock.ExpectExec(q("SET position = position - 1")).
		WithArgs("vehicle_info", 0).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectJournal(mock, instrument.ActionDeleteField, "vehicle_info")

	require.NoError(t, m.DeleteField(context.Background(), "vehicle_info", "color"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteField_RejectsIDColumn(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")

	err := m.DeleteField(context.Background(), "vehicle_info", "id")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderFields(t *testing.T) {
	m, mock := newMigrator(t)

	expectLock(mock, "vehicle_info")
	expectTabs(mock, "vehicle_info")
	expectPositions(mock, "vehicle_info", "vehicle_info_make", "vehicle_info_model")
	mock.ExpectExec(q("UPDATE _field_metadata SET position = $3")).
		WithArgs("vehicle_info", "vehicle_info_model", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE _field_metadata SET position = $3")).
		WithArgs("vehicle_info", "vehicle_info_make", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectJournal(mock, instrument.ActionReorder, "vehicle_info")
	expectColumns(mock, "vehicle_info",
		idColumn("vehicle_info"),
		textCol("vehicle_info_make", true),
		textCol("vehicle_info_model", true))
	expectPositions(mock, "vehicle_info", "vehicle_info_model", "vehicle_info_make")

	fields, err := m.ReorderFields(context.Background(), "vehicle_info", []string{"model", "make"})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "model", fields[0].Name)
	assert.Equal(t, "make", fields[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
