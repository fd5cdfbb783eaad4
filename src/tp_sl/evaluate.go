package tp_sl

import (
	"github.com/shopspring/decimal"

	"fxscheduler/src/model"
	"fxscheduler/src/risk"
)

type Action string

const (
	Hold       Action = "hold"
	StopLoss   Action = "stop_loss"
	TakeProfit Action = "take_profit"
)

// Thresholds are distances in pips. Zero disables a threshold.
type Thresholds struct {
	StopLossPips   decimal.Decimal
	TakeProfitPips decimal.Decimal
}

func (t Thresholds) Enabled() bool {
	return t.StopLossPips.IsPositive() || t.TakeProfitPips.IsPositive()
}

type Decision struct {
	Action Action
	Pips   decimal.Decimal
	Price  decimal.Decimal
}

func (d Decision) Triggered() bool {
	return d.Action != Hold
}

// CloseReason maps a triggered decision to the result close reason.
func (d Decision) CloseReason() string {
	if d.Action == TakeProfit {
		return model.CloseReasonTakeProfit
	}
	return model.CloseReasonStopLoss
}

// Evaluate prices the position at the side it would close on (bid for BUY,
// ask for SELL). Thresholds compare on unrounded pips:
// - stop loss when pips <= -StopLossPips
// - take profit when pips >= TakeProfitPips
func Evaluate(pos model.MonitoredPosition, ticker model.Ticker, th Thresholds) Decision {
	price := ticker.ExitPrice(pos.Side)
	pips := risk.PipMove(pos.Side, pos.EntryPrice, price, pos.Symbol)
	dec := Decision{Action: Hold, Pips: pips.Round(2), Price: price}

	if th.StopLossPips.IsPositive() && pips.LessThanOrEqual(th.StopLossPips.Neg()) {
		dec.Action = StopLoss
		return dec
	}
	if th.TakeProfitPips.IsPositive() && pips.GreaterThanOrEqual(th.TakeProfitPips) {
		dec.Action = TakeProfit
	}
	return dec
}
