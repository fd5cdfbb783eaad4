package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BrokerPosition is an open position as reported by the broker.
type BrokerPosition struct {
	PositionID    string          `json:"position_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Size          decimal.Decimal `json:"size"`
	Price         decimal.Decimal `json:"price"`
	OpenedAt      time.Time       `json:"opened_at"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// MonitoredPosition is a position opened by this process for one schedule
// occurrence. It only lives in memory.
type MonitoredPosition struct {
	PositionID    string          `json:"position_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	EntryTime     time.Time       `json:"entry_time"`
	ScheduledExit time.Time       `json:"scheduled_exit"`
	TradeNumber   string          `json:"trade_number"`
	OccurrenceKey string          `json:"occurrence_key"`
	Closed        bool            `json:"closed"`
}

// Broker returns the broker view of the monitored position.
func (m MonitoredPosition) Broker() BrokerPosition {
	return BrokerPosition{
		PositionID: m.PositionID,
		Symbol:     m.Symbol,
		Side:       m.Side,
		Size:       m.Size,
		Price:      m.EntryPrice,
		OpenedAt:   m.EntryTime,
	}
}
