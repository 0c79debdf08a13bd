package schema

import (
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

// col builds a reflected column row: name, data_type, nullable, enum type.
type col struct {
	name     string
	dataType string
	nullable bool
	enum     string
}

var (
	idColumn = func(tab string) col { return col{tab + "_id", "uuid", false, ""} }
	textCol  = func(name string, nullable bool) col { return col{name, "character varying", nullable, ""} }
	enumCol  = func(name, typ string) col { return col{name, "USER-DEFINED", true, typ} }
)

func expectLock(mock sqlmock.Sqlmock, names ...string) {
	for _, n := range names {
		mock.ExpectExec(q("SELECT pg_advisory_xact_lock(hashtext($1))")).
			WithArgs("tab:" + n).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func expectTabs(mock sqlmock.Sqlmock, tabs ...string) {
	rows := sqlmock.NewRows([]string{"relname"})
	for _, t := range tabs {
		rows.AddRow(t)
	}
	mock.ExpectQuery(q("FROM pg_constraint")).WithArgs("clients").WillReturnRows(rows)
}

func expectColumns(mock sqlmock.Sqlmock, table string, cols ...col) {
	rows := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "enum_type"})
	for _, c := range cols {
		rows.AddRow(c.name, c.dataType, c.nullable, c.enum)
	}
	mock.ExpectQuery(q("ORDER BY ordinal_position")).WithArgs(table).WillReturnRows(rows)
}

// expectPositions mocks the metadata rows of tab; fields are given in position order.
func expectPositions(mock sqlmock.Sqlmock, tab string, fields ...string) {
	rows := sqlmock.NewRows([]string{"id", "tab_name", "field_name", "label", "position"})
	for i, f := range fields {
		rows.AddRow("m"+f, tab, f, "", i)
	}
	mock.ExpectQuery(q("FROM _field_metadata WHERE tab_name = $1 ORDER BY position")).
		WithArgs(tab).WillReturnRows(rows)
}

func expectEnum(mock sqlmock.Sqlmock, typeName string, values ...string) {
	rows := sqlmock.NewRows([]string{"enumlabel"})
	for _, v := range values {
		rows.AddRow(v)
	}
	mock.ExpectQuery(q("FROM pg_enum")).WithArgs(typeName).WillReturnRows(rows)
}

func expectTableExists(mock sqlmock.Sqlmock, table string, exists bool) {
	mock.ExpectQuery(q("FROM information_schema.tables")).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func expectColumnExists(mock sqlmock.Sqlmock, exists bool) {
	mock.ExpectQuery(q("column_name = ANY($2)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func expectEnumStatus(mock sqlmock.Sqlmock, typeName string, exists, used bool) {
	mock.ExpectQuery(q("FROM pg_type t")).
		WithArgs(typeName).
		WillReturnRows(sqlmock.NewRows([]string{"exists", "used"}).AddRow(exists, used))
}

func expectDDL(mock sqlmock.Sqlmock, stmt string) {
	mock.ExpectExec("^" + q(stmt) + "$").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectJournal(mock sqlmock.Sqlmock, action, tab string) {
	mock.ExpectExec(q("INSERT INTO _schema_changes")).
		WithArgs(sqlmock.AnyArg(), action, tab, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectLabel(mock sqlmock.Sqlmock, tab, column, label string) {
	mock.ExpectExec(q("UPDATE _field_metadata SET label = $3")).
		WithArgs(tab, column, label).
		WillReturnResult(sqlmock.NewResult(0, 1))
}
