package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Ticker struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Time   time.Time       `json:"time"`
}

// Spread is ask minus bid in price units.
func (t Ticker) Spread() decimal.Decimal {
	return t.Ask.Sub(t.Bid)
}

// ExitPrice is the price a position of the given side would close at.
func (t Ticker) ExitPrice(side Side) decimal.Decimal {
	if side == SideBuy {
		return t.Bid
	}
	return t.Ask
}

// EntryPrice is the price a new position of the given side would open at.
func (t Ticker) EntryPrice(side Side) decimal.Decimal {
	if side == SideBuy {
		return t.Ask
	}
	return t.Bid
}

type Balance struct {
	Available decimal.Decimal `json:"available"`
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
}
