package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"fxscheduler/src/model"
)

func TestTradeResultRepositoryCreate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeResultRepository{}).WithDB(mockDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "trade_results"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	result := &model.TradeResult{
		Symbol:      "USD_JPY",
		Side:        model.SideBuy,
		EntryPrice:  decimal.RequireFromString("150.100"),
		ExitPrice:   decimal.RequireFromString("150.250"),
		Lot:         decimal.NewFromInt(10000),
		ProfitPips:  decimal.RequireFromString("15"),
		CloseReason: model.CloseReasonScheduled,
		TradingDate: "2024-03-04",
	}
	require.NoError(t, repo.Create(context.Background(), result))
	require.Equal(t, uint(7), result.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeResultRepositoryCreateError(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeResultRepository{}).WithDB(mockDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "trade_results"`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &model.TradeResult{Symbol: "USD_JPY", Side: model.SideSell})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeResultRepositoryFindByTradingDate(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeResultRepository{}).WithDB(mockDB)

	exit := time.Date(2024, 3, 4, 0, 10, 3, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "symbol", "side", "profit_pips", "profit_amount", "exit_time", "trading_date"}).
		AddRow(1, "USD_JPY", "BUY", "15.00", "1500", exit, "2024-03-04").
		AddRow(2, "EUR_USD", "SELL", "-3.20", "-480", exit.Add(time.Hour), "2024-03-04")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_results" WHERE trading_date = $1 ORDER BY exit_time ASC, id ASC`)).
		WithArgs("2024-03-04").
		WillReturnRows(rows)

	results, err := repo.FindByTradingDate(context.Background(), "2024-03-04")
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, model.SideBuy, results[0].Side)
	require.True(t, results[0].IsWin())
	require.Equal(t, "-3.2", results[1].ProfitPips.String())
	require.False(t, results[1].IsWin())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeResultRepositoryFindBetween(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeResultRepository{}).WithDB(mockDB)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(7 * 24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_results" WHERE exit_time >= $1 AND exit_time < $2 ORDER BY exit_time ASC, id ASC`)).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "symbol"}).AddRow(3, "GBP_JPY"))

	results, err := repo.FindBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "GBP_JPY", results[0].Symbol)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeResultRepositoryRecentDefaultsLimit(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := (&TradeResultRepository{}).WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trade_results" ORDER BY id DESC LIMIT $1`)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	results, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExceptionRepository(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := (&ExceptionRepository{}).WithDB(mockDB)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "exceptions"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		exc := &model.Exception{Service: "fxscheduler", Module: "lifecycle", Method: "Exit", Level: "critical"}
		require.NoError(t, repo.Create(context.Background(), exc))
		require.Equal(t, uint(11), exc.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("recent by level", func(t *testing.T) {
		mockDB, mock := newMockDB(t)
		repo := (&ExceptionRepository{}).WithDB(mockDB)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "exceptions" WHERE level = $1 ORDER BY id DESC LIMIT $2`)).
			WithArgs("critical", 5).
			WillReturnRows(sqlmock.NewRows([]string{"id", "level", "message"}).AddRow(4, "critical", "exit failed"))

		out, err := repo.Recent(context.Background(), "critical", 5)
		require.NoError(t, err)
		require.Len(t, out, 1)
		require.Equal(t, "exit failed", out[0].Message)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}
