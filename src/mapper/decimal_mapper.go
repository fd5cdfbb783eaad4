package mapper

import (
	"strings"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/model"
)

// DecimalSafe parses a broker numeric string. Empty or malformed values are
// logged and mapped to zero instead of failing the whole payload.
func DecimalSafe(field, v string) decimal.Decimal {
	v = strings.TrimSpace(v)
	if v == "" {
		logger.WithField("field", field).Debug("Empty numeric field received, defaulting to 0")
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"field": field,
			"value": v,
		}).WithError(err).Error("Failed to parse decimal from broker field; defaulting to 0")
		return decimal.Zero
	}
	return d
}

// SignedUnits renders a size as OANDA units: negative for SELL.
func SignedUnits(side model.Side, size decimal.Decimal) string {
	units := size.Abs().Truncate(0)
	if side == model.SideSell {
		units = units.Neg()
	}
	return units.String()
}

// SideFromUnits maps OANDA signed units back to a side and an absolute size.
func SideFromUnits(units decimal.Decimal) (model.Side, decimal.Decimal) {
	if units.IsNegative() {
		return model.SideSell, units.Abs()
	}
	return model.SideBuy, units
}
