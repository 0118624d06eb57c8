package migrations

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestListOrdersMigrations(t *testing.T) {
	pg, err := List(Postgres)
	require.NoError(t, err)
	require.Equal(t, "0001_core", pg[0].Name)
	require.Equal(t, "0002_outbox", pg[1].Name)
	require.Contains(t, pg[0].Up, "CREATE TABLE IF NOT EXISTS gym_records")

	lite, err := List(SQLite)
	require.NoError(t, err)
	require.Len(t, lite, 1)

	_, err = List(Dialect("oracle"))
	require.Error(t, err)
}

func TestApplyExecutesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schema_migrations WHERE name = $1")).
		WithArgs("0001_core").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schema_migrations WHERE name = $1")).
		WithArgs("0002_outbox").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS outbox").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (name) VALUES ($1)")).
		WithArgs("0002_outbox").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := Apply(context.Background(), db, Postgres)
	require.NoError(t, err)
	require.Equal(t, []string{"0002_outbox"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schema_migrations WHERE name = ?")).
		WithArgs("0001_core").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := Apply(context.Background(), db, SQLite)
	require.Error(t, err)
	require.Contains(t, err.Error(), "migration 0001_core failed")
	require.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}
