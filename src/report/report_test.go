package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fxscheduler/src/model"
)

func result(symbol string, side model.Side, pips, amount string, exit time.Time) model.TradeResult {
	return model.TradeResult{
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   decimal.RequireFromString("150.005"),
		ExitPrice:    decimal.RequireFromString("150.105"),
		Lot:          decimal.NewFromInt(10000),
		ProfitPips:   decimal.RequireFromString(pips),
		ProfitAmount: decimal.RequireFromString(amount),
		EntryTime:    exit.Add(-10 * time.Minute),
		ExitTime:     exit,
		TradingDate:  "2024-03-04",
	}
}

func TestDailyCSVAppendAndRead(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	dir := t.TempDir()
	c, err := NewDailyCSV(dir, loc)
	require.NoError(t, err)

	exit := time.Date(2024, 3, 4, 9, 10, 3, 0, loc)
	require.NoError(t, c.Append(result("USD_JPY", model.SideBuy, "10", "1000", exit)))
	require.NoError(t, c.Append(result("EUR_USD", model.SideSell, "-3.25", "-487.6", exit.Add(time.Hour))))

	raw, err := os.ReadFile(c.Path("2024-03-04"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "date,symbol,side,entry,exit,lot,pips,amount,entry_time,exit_time", lines[0])
	require.Equal(t, "2024-03-04,USD_JPY,BUY,150.005,150.105,10000,10.0,1000,2024-03-04 09:00:03,2024-03-04 09:10:03", lines[1])
	require.Contains(t, lines[2], ",-3.3,-488,")

	rows, err := c.ReadDay("2024-03-04")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, model.SideSell, rows[1].Side)
	require.True(t, rows[0].ExitTime.Equal(exit))

	rows, err = c.ReadDay("2024-03-05")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestNewDailyCSVRequiresDir(t *testing.T) {
	_, err := NewDailyCSV("", nil)
	require.Error(t, err)
}

func TestCompute(t *testing.T) {
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	results := []model.TradeResult{
		result("USD_JPY", model.SideBuy, "10", "1000", base),
		result("USD_JPY", model.SideBuy, "-5", "-500", base.Add(time.Hour)),
		result("USD_JPY", model.SideSell, "-7", "-700", base.Add(2*time.Hour)),
		result("USD_JPY", model.SideSell, "20", "2000", base.Add(3*time.Hour)),
	}

	m := Compute(results)
	require.Equal(t, 4, m.TotalTrades)
	require.Equal(t, 2, m.Wins)
	require.Equal(t, 2, m.Losses)
	require.InDelta(t, 0.5, m.WinRate, 1e-9)
	require.Equal(t, "18", m.TotalPips.String())
	require.Equal(t, "4.5", m.AveragePips.String())
	require.Equal(t, "1800", m.TotalAmount.String())
	require.Equal(t, "2000", m.MaxProfit.String())
	require.Equal(t, "-700", m.MaxLoss.String())
	// peak 1000, trough -200
	require.Equal(t, "1200", m.MaxDrawdown.String())
	// mean 450, sample stddev 1281.9
	require.InDelta(t, 0.3510, m.Sharpe, 1e-3)

	out := m.Format("Today")
	require.Contains(t, out, "trades: 4 (win 2 / loss 2, 50.0%)")
	require.Contains(t, out, "max drawdown: 1200")
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil)
	require.Zero(t, m.TotalTrades)
	require.Equal(t, "Today\nno trades", m.Format("Today"))
}
