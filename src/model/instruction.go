package model

import (
	"fxscheduler/src/tradingtime"

	"github.com/shopspring/decimal"
)

// TradeInstruction is one schedule row. It is never mutated after load.
type TradeInstruction struct {
	TradeNumber string
	Side        Side
	Symbol      string
	Entry       tradingtime.TimeOfDay
	Exit        tradingtime.TimeOfDay
	// Lot is nil when the size is computed at execution time.
	Lot *decimal.Decimal
}

func (t TradeInstruction) AutoSized() bool {
	return t.Lot == nil
}

// LotLabel renders the lot column for listings.
func (t TradeInstruction) LotLabel() string {
	if t.Lot == nil {
		return "auto"
	}
	return t.Lot.String()
}
