package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/mapper"
)

var (
	SafetyMargin = decimal.RequireFromString("0.95")
	MinLot       = decimal.NewFromInt(1)
	MaxLot       = decimal.NewFromInt(500000)
)

var ErrInvalidLotInput = errors.New("invalid auto-lot input")

// LotInput carries everything AutoLot needs. Rate is the ask for BUY and the
// bid for SELL. Currency is the account currency, JPY when empty.
// QuoteRate is the account-currency value of one unit of the quote currency;
// it is only read when neither leg of Symbol is the account currency, and
// zero means the rate is unavailable.
type LotInput struct {
	Balance   decimal.Decimal
	RiskRatio decimal.Decimal
	Leverage  int
	Rate      decimal.Decimal
	Symbol    string
	Currency  string
	QuoteRate decimal.Decimal
}

// NeedsQuoteRate reports whether sizing symbol on an account held in currency
// needs a QuoteRate.
func NeedsQuoteRate(symbol, currency string) bool {
	account := AccountCurrency(currency)
	return mapper.QuoteCurrency(symbol) != account && mapper.BaseCurrency(symbol) != account
}

// AutoLot computes floor(balance × risk_ratio × 0.95 × leverage / unit price),
// clamped to [MinLot, MaxLot]. The unit price is the account-currency value of
// one base unit: Rate for pairs quoted in the account currency, 1 for pairs
// based on it, Rate × QuoteRate otherwise.
func AutoLot(in LotInput) (decimal.Decimal, error) {
	if !in.Balance.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: balance %s", ErrInvalidLotInput, in.Balance)
	}
	if in.Leverage <= 0 {
		return decimal.Zero, fmt.Errorf("%w: leverage %d", ErrInvalidLotInput, in.Leverage)
	}
	if !in.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate %s", ErrInvalidLotInput, in.Rate)
	}

	account := AccountCurrency(in.Currency)
	log := logger.WithFields(map[string]interface{}{
		"component": "risk",
		"symbol":    in.Symbol,
		"account":   account,
	})

	price := in.Rate
	switch {
	case mapper.QuoteCurrency(in.Symbol) == account:
		// priced in the account currency
	case mapper.BaseCurrency(in.Symbol) == account:
		price = decimal.NewFromInt(1)
	case in.QuoteRate.IsPositive():
		price = in.Rate.Mul(in.QuoteRate)
	default:
		log.Warn("Quote conversion rate unavailable, sizing on the unconverted balance")
	}

	available := in.Balance.Mul(in.RiskRatio).Mul(SafetyMargin)
	lot := available.Mul(decimal.NewFromInt(int64(in.Leverage))).Div(price).Floor()
	switch {
	case lot.LessThan(MinLot):
		log.WithField("computed", lot.String()).Warn("Auto-lot below minimum, using 1")
		lot = MinLot
	case lot.GreaterThan(MaxLot):
		log.WithField("computed", lot.String()).Warn("Auto-lot above per-order maximum, capping")
		lot = MaxLot
	}

	log.WithFields(map[string]interface{}{
		"balance":    in.Balance.String(),
		"risk_ratio": in.RiskRatio.String(),
		"leverage":   in.Leverage,
		"rate":       in.Rate.String(),
		"lot":        lot.String(),
	}).Info("Auto-lot computed")
	return lot, nil
}
