package migrations

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestRunOnceAppliesAndRecords(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "data_migrations" WHERE id = $1`)).
		WithArgs("00042_test", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at"}))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE trade_results SET close_reason`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "data_migrations"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, RunOnce(db, "00042_test", backfillCloseReason))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceSkipsApplied(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "data_migrations" WHERE id = $1`)).
		WithArgs("00042_test", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at"}).AddRow("00042_test", time.Now()))
	mock.ExpectCommit()

	called := false
	require.NoError(t, RunOnce(db, "00042_test", func(*gorm.DB) error {
		called = true
		return nil
	}))
	require.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "data_migrations" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at"}))
	mock.ExpectRollback()

	err := RunOnce(db, "00042_test", func(*gorm.DB) error { return errors.New("boom") })
	require.ErrorContains(t, err, `run migration "00042_test": boom`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnceValidatesInput(t *testing.T) {
	require.NoError(t, RunOnce(nil, "x", backfillCloseReason))

	db, _ := newMockDB(t)
	require.Error(t, RunOnce(db, "", backfillCloseReason))
	require.Error(t, RunOnce(db, "x", nil))
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}
