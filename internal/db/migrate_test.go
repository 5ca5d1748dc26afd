package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationCols = []string{"id", "name", "applied_at", "checksum"}

func expectMigrationsTable(mock sqlmock.Sqlmock, applied *sqlmock.Rows) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, applied_at, checksum FROM schema_migrations")).
		WillReturnRows(applied)
}

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFileNames()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_initial_schema", migrationName(files[0]))
}

func TestMigrator_UpAppliesPending(t *testing.T) {
	database, mock := newMockDB(t)

	expectMigrationsTable(mock, sqlmock.NewRows(migrationCols))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS devices").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (name, checksum)")).
		WithArgs("001_initial_schema", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrator(database.DB).Up(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	database, mock := newMockDB(t)

	content, err := migrationFiles.ReadFile("001_initial_schema.sql")
	require.NoError(t, err)
	expectMigrationsTable(mock, sqlmock.NewRows(migrationCols).
		AddRow(1, "001_initial_schema", time.Now(), checksum(content)))

	require.NoError(t, NewMigrator(database.DB).Up(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Status(t *testing.T) {
	database, mock := newMockDB(t)
	appliedAt := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)

	expectMigrationsTable(mock, sqlmock.NewRows(migrationCols).
		AddRow(1, "001_initial_schema", appliedAt, "edited-since"))

	statuses, err := NewMigrator(database.DB).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "001_initial_schema", statuses[0].Name)
	assert.True(t, statuses[0].Applied)
	assert.True(t, statuses[0].Modified)
	assert.True(t, appliedAt.Equal(statuses[0].AppliedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
