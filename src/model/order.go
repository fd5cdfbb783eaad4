package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderRequest is a market order sent to a broker.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Size          decimal.Decimal
	Leverage      int
	ClientOrderID string
}

// OrderAck is what a broker returns for an accepted order. Fields the broker does
// not report stay zero.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Size          decimal.Decimal
	Price         decimal.Decimal
	// PositionID is set when the broker reports the opened position inline.
	PositionID string
	CreatedAt  time.Time
}
