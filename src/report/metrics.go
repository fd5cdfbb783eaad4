package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"fxscheduler/src/model"
)

// Metrics summarises a set of closed trades. Amounts are in the account
// currency.
type Metrics struct {
	TotalTrades   int             `json:"total_trades"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       float64         `json:"win_rate"`
	TotalPips     decimal.Decimal `json:"total_pips"`
	AveragePips   decimal.Decimal `json:"average_pips"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AverageAmount decimal.Decimal `json:"average_amount"`
	MaxProfit     decimal.Decimal `json:"max_profit"`
	MaxLoss       decimal.Decimal `json:"max_loss"`
	// MaxDrawdown is the largest fall of the cumulative amount from a
	// previous peak, reported as a positive number.
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
	// Sharpe is mean/stddev of the per-trade amounts, zero when undefined.
	Sharpe float64 `json:"sharpe"`
}

// Compute expects results in exit order.
func Compute(results []model.TradeResult) Metrics {
	m := Metrics{}
	if len(results) == 0 {
		return m
	}

	var (
		equity  decimal.Decimal
		peak    decimal.Decimal
		amounts = make([]float64, 0, len(results))
	)
	m.MaxProfit = results[0].ProfitAmount
	m.MaxLoss = results[0].ProfitAmount
	for _, r := range results {
		m.TotalTrades++
		switch {
		case r.ProfitAmount.IsPositive():
			m.Wins++
		case r.ProfitAmount.IsNegative():
			m.Losses++
		}
		m.TotalPips = m.TotalPips.Add(r.ProfitPips)
		m.TotalAmount = m.TotalAmount.Add(r.ProfitAmount)
		if r.ProfitAmount.GreaterThan(m.MaxProfit) {
			m.MaxProfit = r.ProfitAmount
		}
		if r.ProfitAmount.LessThan(m.MaxLoss) {
			m.MaxLoss = r.ProfitAmount
		}

		equity = equity.Add(r.ProfitAmount)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(m.MaxDrawdown) {
			m.MaxDrawdown = dd
		}
		amounts = append(amounts, r.ProfitAmount.InexactFloat64())
	}

	n := decimal.NewFromInt(int64(m.TotalTrades))
	m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
	m.AveragePips = m.TotalPips.Div(n).Round(2)
	m.AverageAmount = m.TotalAmount.Div(n).Round(2)
	m.Sharpe = sharpe(amounts)
	return m
}

func sharpe(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}

// Format renders the metrics for chat and CLI output.
func (m Metrics) Format(title string) string {
	var sb strings.Builder
	sb.WriteString(title + "\n")
	if m.TotalTrades == 0 {
		sb.WriteString("no trades")
		return sb.String()
	}
	fmt.Fprintf(&sb, "trades: %d (win %d / loss %d, %.1f%%)\n", m.TotalTrades, m.Wins, m.Losses, m.WinRate*100)
	fmt.Fprintf(&sb, "pips: %s (avg %s)\n", m.TotalPips.StringFixed(1), m.AveragePips.StringFixed(1))
	fmt.Fprintf(&sb, "amount: %s (avg %s)\n", m.TotalAmount.StringFixed(0), m.AverageAmount.StringFixed(0))
	fmt.Fprintf(&sb, "max profit: %s, max loss: %s\n", m.MaxProfit.StringFixed(0), m.MaxLoss.StringFixed(0))
	fmt.Fprintf(&sb, "max drawdown: %s, sharpe: %.2f", m.MaxDrawdown.StringFixed(0), m.Sharpe)
	return sb.String()
}
