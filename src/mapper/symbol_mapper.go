package mapper

import (
	"fmt"
	"strings"

	"github.com/nntaoli-project/goex"
)

// NormalizeSymbol turns "USD/JPY", "usdjpy" or "USD_JPY" into the canonical
// "USD_JPY" form used by every broker connector.
func NormalizeSymbol(raw string) (string, error) {
	pair, err := ParsePair(raw)
	if err != nil {
		return "", err
	}
	return pair.ToSymbol("_"), nil
}

// ParsePair splits a currency pair into base and quote. Six-letter symbols
// without a separator split after the third letter.
func ParsePair(raw string) (goex.CurrencyPair, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	sep := "_"
	switch {
	case strings.Contains(s, "/"):
		sep = "/"
	case !strings.Contains(s, "_") && len(s) == 6:
		s = s[:3] + "_" + s[3:]
	}
	if strings.Count(s, sep) != 1 {
		return goex.UNKNOWN_PAIR, fmt.Errorf("invalid currency pair %q", raw)
	}

	pair := goex.NewCurrencyPair3(s, sep)
	if !isCurrencyCode(pair.CurrencyA.Symbol) || !isCurrencyCode(pair.CurrencyB.Symbol) {
		return goex.UNKNOWN_PAIR, fmt.Errorf("invalid currency pair %q", raw)
	}
	return pair, nil
}

// QuoteCurrency returns the second leg of a canonical symbol, or "" when the
// symbol cannot be parsed.
func QuoteCurrency(symbol string) string {
	pair, err := ParsePair(symbol)
	if err != nil {
		return ""
	}
	return pair.CurrencyB.Symbol
}

// BaseCurrency returns the first leg of a symbol, or "".
func BaseCurrency(symbol string) string {
	pair, err := ParsePair(symbol)
	if err != nil {
		return ""
	}
	return pair.CurrencyA.Symbol
}

// IsJPYQuoted reports whether prices of symbol are expressed in yen.
func IsJPYQuoted(symbol string) bool {
	pair, err := ParsePair(symbol)
	return err == nil && pair.CurrencyB.Eq(goex.JPY)
}

// ConversionSymbols returns the direct and the inverse pair that price one
// unit of from in to, e.g. JPY_USD and USD_JPY for yen into dollars.
func ConversionSymbols(from, to string) (direct, inverse string) {
	pair := goex.NewCurrencyPair(goex.NewCurrency(from, ""), goex.NewCurrency(to, ""))
	return pair.ToSymbol("_"), pair.Reverse().ToSymbol("_")
}

func isCurrencyCode(s string) bool {
	if len(s) < 3 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
