package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/risk"
	"fxscheduler/src/tradingtime"
)

// ResultSink receives every closed trade, e.g. the daily CSV file.
type ResultSink interface {
	Append(result model.TradeResult) error
}

// AccountRates converts profits into the account currency.
type AccountRates interface {
	risk.RateSource
	AccountCurrency(ctx context.Context) (string, error)
}

// ResultRecorder turns closed positions into TradeResults and fans them out
// to the repository, the sinks and the notifier.
type ResultRecorder struct {
	runID      string
	broker     string
	cal        *tradingtime.Calendar
	rates      AccountRates
	repo       tradeResultRepository
	exceptions exceptionRepository
	notifier   notify.Notifier
	sinks      []ResultSink

	mu       sync.Mutex
	results  []model.TradeResult
	currency string
}

func NewResultRecorder(
	runID string,
	brokerName string,
	cal *tradingtime.Calendar,
	rates AccountRates,
	notifier notify.Notifier,
	sinks ...ResultSink,
) *ResultRecorder {
	return &ResultRecorder{
		runID:      runID,
		broker:     brokerName,
		cal:        cal,
		rates:      rates,
		repo:       newTradeResultRepo(),
		exceptions: newExceptionRepo(),
		notifier:   notifier,
		sinks:      sinks,
	}
}

// accountCurrency asks the broker once and remembers the answer. Until the
// broker answers the default account currency is used.
func (r *ResultRecorder) accountCurrency(ctx context.Context) string {
	r.mu.Lock()
	cached := r.currency
	r.mu.Unlock()
	if cached != "" || r.rates == nil {
		return risk.AccountCurrency(cached)
	}

	currency, err := r.rates.AccountCurrency(ctx)
	if err != nil || currency == "" {
		logger.WithError(err).WithField("component", "results").Warn("Account currency unknown, assuming " + risk.DefaultAccountCurrency)
		return risk.DefaultAccountCurrency
	}
	r.mu.Lock()
	r.currency = currency
	r.mu.Unlock()
	return risk.AccountCurrency(currency)
}

// Record builds the result of a closed position. Storage failures are logged
// and captured; the result is returned regardless.
func (r *ResultRecorder) Record(
	ctx context.Context,
	pos model.MonitoredPosition,
	exitPrice decimal.Decimal,
	exitTime time.Time,
	reason string,
) model.TradeResult {
	result := model.TradeResult{
		RunID:        r.runID,
		Broker:       r.broker,
		TradeNumber:  pos.TradeNumber,
		PositionID:   pos.PositionID,
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    exitPrice,
		Lot:          pos.Size,
		ProfitPips:   risk.ProfitPips(pos.Side, pos.EntryPrice, exitPrice, pos.Symbol),
		ProfitAmount: risk.ProfitAmount(ctx, r.rates, r.accountCurrency(ctx), pos.Side, pos.EntryPrice, exitPrice, pos.Size, pos.Symbol),
		CloseReason:  reason,
		EntryTime:    pos.EntryTime,
		ExitTime:     exitTime,
		TradingDate:  r.cal.DateKey(pos.EntryTime),
	}

	r.mu.Lock()
	r.results = append(r.results, result)
	r.mu.Unlock()

	log := logger.WithFields(map[string]interface{}{
		"component":    "results",
		"symbol":       result.Symbol,
		"side":         result.Side,
		"trade_number": result.TradeNumber,
		"pips":         result.ProfitPips.String(),
		"amount":       result.ProfitAmount.String(),
		"reason":       reason,
	})
	log.Info("Trade closed")

	if r.repo != nil {
		if err := r.repo.Create(ctx, &result); err != nil {
			Capture(ctx, r.exceptions, Service, "results", "Record", LevelError, err, map[string]interface{}{
				"symbol":       result.Symbol,
				"trade_number": result.TradeNumber,
			})
		}
	}
	for _, sink := range r.sinks {
		if err := sink.Append(result); err != nil {
			log.WithError(err).Error("Failed to append trade result")
		}
	}

	notify.Notifyf(ctx, r.notifier, "[EXIT] #%s %s %s %s %s -> %s %s pips %s (%s)",
		result.TradeNumber, result.Symbol, result.Side.Label(), result.Lot,
		result.EntryPrice, result.ExitPrice,
		signed(result.ProfitPips.StringFixed(1)), signed(result.ProfitAmount.StringFixed(0)), reason)
	return result
}

// Results returns the results recorded by this process for one trading date,
// all of them when date is empty.
func (r *ResultRecorder) Results(date string) []model.TradeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TradeResult, 0, len(r.results))
	for _, res := range r.results {
		if date == "" || res.TradingDate == date {
			out = append(out, res)
		}
	}
	return out
}

// Prune drops results of trading dates before keepFrom (YYYY-MM-DD).
func (r *ResultRecorder) Prune(keepFrom string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.results[:0]
	for _, res := range r.results {
		if res.TradingDate >= keepFrom {
			kept = append(kept, res)
		}
	}
	r.results = kept
}

func signed(s string) string {
	if len(s) > 0 && s[0] != '-' {
		return "+" + s
	}
	return s
}

// CloseSummary totals a batch close such as kill or the out-of-schedule sweep.
type CloseSummary struct {
	Closed int             `json:"closed"`
	Failed int             `json:"failed"`
	Pips   decimal.Decimal `json:"pips"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *CloseSummary) add(res model.TradeResult) {
	s.Closed++
	s.Pips = s.Pips.Add(res.ProfitPips)
	s.Amount = s.Amount.Add(res.ProfitAmount)
}

func (s CloseSummary) String() string {
	return fmt.Sprintf("closed %d, failed %d, %s pips, %s", s.Closed, s.Failed,
		signed(s.Pips.StringFixed(1)), signed(s.Amount.StringFixed(0)))
}
