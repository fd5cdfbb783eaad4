package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// DefaultDailyVolumeLimit is the per-symbol units allowed in one trading day.
var DefaultDailyVolumeLimit = decimal.NewFromInt(15_000_000)

// VolumeLimitError is returned when an order would exceed the daily limit.
type VolumeLimitError struct {
	Symbol    string
	Used      decimal.Decimal
	Requested decimal.Decimal
	Limit     decimal.Decimal
}

func (e *VolumeLimitError) Error() string {
	return fmt.Sprintf("daily volume limit for %s: used %s + %s exceeds %s",
		e.Symbol, e.Used, e.Requested, e.Limit)
}

// VolumeLimiter tracks traded units per symbol for the current trading day.
type VolumeLimiter struct {
	mu    sync.Mutex
	limit decimal.Decimal
	day   string
	used  map[string]decimal.Decimal
}

func NewVolumeLimiter(limit decimal.Decimal) *VolumeLimiter {
	if !limit.IsPositive() {
		limit = DefaultDailyVolumeLimit
	}
	return &VolumeLimiter{limit: limit, used: map[string]decimal.Decimal{}}
}

// Reserve books size units for symbol on the trading day dayKey. A new dayKey
// clears all previous bookings.
func (v *VolumeLimiter) Reserve(dayKey, symbol string, size decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rollLocked(dayKey)
	used := v.used[symbol]
	if used.Add(size).GreaterThan(v.limit) {
		return &VolumeLimitError{Symbol: symbol, Used: used, Requested: size, Limit: v.limit}
	}
	v.used[symbol] = used.Add(size)
	return nil
}

// Release gives back units booked for an order that was never filled.
func (v *VolumeLimiter) Release(dayKey, symbol string, size decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.day != dayKey {
		return
	}
	left := v.used[symbol].Sub(size)
	if left.IsNegative() {
		left = decimal.Zero
	}
	v.used[symbol] = left
}

// Reset starts a new trading day.
func (v *VolumeLimiter) Reset(dayKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rollLocked(dayKey)
}

func (v *VolumeLimiter) Used(symbol string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.used[symbol]
}

func (v *VolumeLimiter) rollLocked(dayKey string) {
	if v.day == dayKey {
		return
	}
	v.day = dayKey
	v.used = map[string]decimal.Decimal{}
}
