package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CloseReasonScheduled     = "scheduled"
	CloseReasonStopLoss      = "stop_loss"
	CloseReasonTakeProfit    = "take_profit"
	CloseReasonReconcile     = "reconcile"
	CloseReasonKill          = "kill"
	CloseReasonOutOfSchedule = "out_of_schedule"
)

// TradeResult is the append-only record written when a position is closed.
type TradeResult struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	RunID       string          `gorm:"size:36;index" json:"run_id"`
	Broker      string          `gorm:"size:20;index" json:"broker"`
	TradeNumber string          `gorm:"size:50" json:"trade_number"`
	PositionID  string          `gorm:"size:100;index" json:"position_id"`
	Symbol      string          `gorm:"size:20;index;not null" json:"symbol"`
	Side        Side            `gorm:"size:4;not null" json:"side"`
	EntryPrice  decimal.Decimal `gorm:"type:numeric(20,8)" json:"entry_price"`
	ExitPrice   decimal.Decimal `gorm:"type:numeric(20,8)" json:"exit_price"`
	Lot         decimal.Decimal `gorm:"type:numeric(20,2)" json:"lot"`
	ProfitPips  decimal.Decimal `gorm:"type:numeric(20,2)" json:"profit_pips"`
	// ProfitAmount is in the account currency.
	ProfitAmount decimal.Decimal `gorm:"type:numeric(20,4)" json:"profit_amount"`
	CloseReason  string          `gorm:"size:30" json:"close_reason"`
	EntryTime    time.Time       `json:"entry_time"`
	ExitTime     time.Time       `json:"exit_time"`
	// TradingDate is the trading day of the entry, YYYY-MM-DD.
	TradingDate string    `gorm:"size:10;index" json:"trading_date"`
	CreatedAt   time.Time `json:"created_at"`
}

func (TradeResult) TableName() string {
	return "trade_results"
}

func (r TradeResult) IsWin() bool {
	return r.ProfitAmount.IsPositive()
}
