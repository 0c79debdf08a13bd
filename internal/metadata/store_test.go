package metadata

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clienttabs/internal/apperr"
	"clienttabs/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestGetPosition(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(q("SELECT position FROM _field_metadata")).
		WithArgs("vehicle_info", "vehicle_info_make").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(2))
	pos, err := s.GetPosition(ctx, "vehicle_info", "vehicle_info_make")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	mock.ExpectQuery(q("SELECT position FROM _field_metadata")).
		WithArgs("vehicle_info", "vehicle_info_gone").
		WillReturnRows(sqlmock.NewRows([]string{"position"}))
	_, err = s.GetPosition(ctx, "vehicle_info", "vehicle_info_gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFieldCreated(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("INSERT INTO _field_metadata (id, tab_name, field_name, label, position)")).
		WithArgs(sqlmock.AnyArg(), "vehicle_info", "vehicle_info_e_mail", "E-mail", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RecordFieldCreated(context.Background(), "vehicle_info", "vehicle_info_e_mail", "E-mail", 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetLabel(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("UPDATE _field_metadata SET label = $3 WHERE tab_name = $1 AND field_name = $2")).
		WithArgs("vehicle_info", "vehicle_info_e_mail", "E mail").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SetLabel(context.Background(), "vehicle_info", "vehicle_info_e_mail", "E mail"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameTab_RenamespacesFields(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("SET tab_name = $2, field_name = $2 || substr(field_name, length($1) + 1)")).
		WithArgs("vehicle_info", "car").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.RenameTab(context.Background(), "vehicle_info", "car"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteField_CompactsPositions(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("DELETE FROM _field_metadata WHERE tab_name = $1 AND field_name = $2 RETURNING position")).
		WithArgs("vehicle_info", "vehicle_info_make").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(1))
	mock.ExpectExec(q("UPDATE _field_metadata SET position = position - 1")).
		WithArgs("vehicle_info", 1).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, s.DeleteField(context.Background(), "vehicle_info", "vehicle_info_make"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteField_MissingRowIsNoop(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("DELETE FROM _field_metadata")).
		WithArgs("vehicle_info", "vehicle_info_gone").
		WillReturnRows(sqlmock.NewRows([]string{"position"}))

	require.NoError(t, s.DeleteField(context.Background(), "vehicle_info", "vehicle_info_gone"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteTab(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(q("DELETE FROM _field_metadata WHERE tab_name = $1")).
		WithArgs("vehicle_info").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteTab(context.Background(), "vehicle_info"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func metadataRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tab_name", "field_name", "label", "position"}).
		AddRow("a", "vehicle_info", "vehicle_info_make", "Make", 0).
		AddRow("b", "vehicle_info", "vehicle_info_model", "Model", 1)
}

func TestReorder(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("FROM _field_metadata WHERE tab_name = $1")).
		WithArgs("vehicle_info").
		WillReturnRows(metadataRows())
	mock.ExpectExec(q("UPDATE _field_metadata SET position = $3")).
		WithArgs("vehicle_info", "vehicle_info_model", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE _field_metadata SET position = $3")).
		WithArgs("vehicle_info", "vehicle_info_make", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Reorder(context.Background(), "vehicle_info", []string{"vehicle_info_model", "vehicle_info_make"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReorder_RejectsIncompleteList(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("FROM _field_metadata WHERE tab_name = $1")).
		WithArgs("vehicle_info").
		WillReturnRows(metadataRows())

	err := s.Reorder(context.Background(), "vehicle_info", []string{"vehicle_info_make", "vehicle_info_make"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	require.NoError(t, mock.ExpectationsWereMet())
}
