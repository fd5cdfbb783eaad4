package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	for _, in := range []string{"買", "long", "L", "Buy", " l "} {
		got, err := ParseSide(in)
		require.NoError(t, err, in)
		require.Equal(t, SideBuy, got)
	}
	for _, in := range []string{"売", "SHORT", "s", "sell"} {
		got, err := ParseSide(in)
		require.NoError(t, err, in)
		require.Equal(t, SideSell, got)
	}
	_, err := ParseSide("hold")
	require.Error(t, err)
}

func TestSideOpposite(t *testing.T) {
	require.Equal(t, SideSell, SideBuy.Opposite())
	require.Equal(t, SideBuy, SideSell.Opposite())
	require.Equal(t, "long", SideBuy.Label())
}

func TestTickerPrices(t *testing.T) {
	tk := Ticker{Bid: decimal.RequireFromString("149.99"), Ask: decimal.RequireFromString("150.01")}
	require.True(t, tk.Spread().Equal(decimal.RequireFromString("0.02")))
	require.True(t, tk.ExitPrice(SideBuy).Equal(tk.Bid))
	require.True(t, tk.ExitPrice(SideSell).Equal(tk.Ask))
	require.True(t, tk.EntryPrice(SideBuy).Equal(tk.Ask))
}
