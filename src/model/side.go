package model

import (
	"fmt"
	"strings"
)

// Side is the direction of an order or position as the brokers spell it.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts the schedule spellings: 買/long/l/buy and 売/short/s/sell.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "買", "long", "l", "buy":
		return SideBuy, nil
	case "売", "short", "s", "sell":
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown direction %q", raw)
}

// Opposite is the side used to offset a position.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Label is the human spelling used in notifications.
func (s Side) Label() string {
	if s == SideBuy {
		return "long"
	}
	return "short"
}
