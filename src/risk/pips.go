package risk

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/mapper"
	"fxscheduler/src/model"
)

var (
	jpyPip   = decimal.New(1, -2)
	otherPip = decimal.New(1, -4)
)

// PipSize is 0.01 for yen-quoted pairs and 0.0001 otherwise.
func PipSize(symbol string) decimal.Decimal {
	if mapper.IsJPYQuoted(symbol) {
		return jpyPip
	}
	return otherPip
}

// PipMove is the signed price move in the position's favour, in pips, at
// full precision. Threshold checks compare on this value.
func PipMove(side model.Side, entry, exit decimal.Decimal, symbol string) decimal.Decimal {
	move := exit.Sub(entry)
	if side == model.SideSell {
		move = move.Neg()
	}
	return move.Div(PipSize(symbol))
}

// ProfitPips is PipMove rounded to two decimals for reports and storage.
func ProfitPips(side model.Side, entry, exit decimal.Decimal, symbol string) decimal.Decimal {
	return PipMove(side, entry, exit, symbol).Round(2)
}

// DefaultAccountCurrency is assumed when the broker reports none.
const DefaultAccountCurrency = "JPY"

// AccountCurrency returns currency, or DefaultAccountCurrency when empty.
func AccountCurrency(currency string) string {
	if currency == "" {
		return DefaultAccountCurrency
	}
	return strings.ToUpper(currency)
}

// RateSource prices one unit of from in to, e.g. USD in JPY.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// ProfitAmount is pips × size × pip in the quote currency, converted to the
// account currency through rates when the two differ. When conversion fails
// the unconverted amount is returned.
func ProfitAmount(ctx context.Context, rates RateSource, account string, side model.Side, entry, exit, size decimal.Decimal, symbol string) decimal.Decimal {
	pip := PipSize(symbol)
	amount := ProfitPips(side, entry, exit, symbol).Mul(size).Mul(pip)
	account = AccountCurrency(account)
	quote := mapper.QuoteCurrency(symbol)
	if quote == account || rates == nil {
		return amount.Round(2)
	}

	rate, err := rates.Rate(ctx, quote, account)
	if err != nil || !rate.IsPositive() {
		logger.WithFields(map[string]interface{}{
			"component": "risk",
			"symbol":    symbol,
			"account":   account,
		}).WithError(err).Warn("Conversion rate unavailable, profit left in quote currency")
		return amount.Round(2)
	}
	return amount.Mul(rate).Round(2)
}
