package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/connectors"
	"fxscheduler/src/mapper"
	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/risk"
	"fxscheduler/src/schedule"
	"fxscheduler/src/tradingtime"
)

var (
	ErrDuplicatePosition = errors.New("same-side position already open")
	ErrEntryAbandoned    = errors.New("entry abandoned")

	// errOrderUnconfirmed marks a failed order call. The broker may still
	// have filled it.
	errOrderUnconfirmed = errors.New("create order")
)

// SpreadError is returned for a quote whose spread is above the threshold.
type SpreadError struct {
	Symbol    string
	Spread    decimal.Decimal
	Threshold decimal.Decimal
}

func (e *SpreadError) Error() string {
	return fmt.Sprintf("spread %s on %s above threshold %s", e.Spread, e.Symbol, e.Threshold)
}

// Lifecycle runs the entry, monitor and exit protocols against one broker.
type Lifecycle struct {
	cfg        Config
	broker     connectors.Broker
	cal        *tradingtime.Calendar
	clock      tradingtime.Clock
	set        *MonitoredSet
	volume     *risk.VolumeLimiter
	notifier   notify.Notifier
	results    *ResultRecorder
	rates      risk.RateSource
	exceptions exceptionRepository

	// Replaced in tests.
	sleep       func(ctx context.Context, d time.Duration) error
	jitter      func(max time.Duration) time.Duration
	newClientID func() string

	sweeps sync.WaitGroup
	log    *logger.Entry
}

func NewLifecycle(
	cfg Config,
	broker connectors.Broker,
	cal *tradingtime.Calendar,
	clock tradingtime.Clock,
	notifier notify.Notifier,
	results *ResultRecorder,
) *Lifecycle {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Lifecycle{
		cfg:         cfg,
		broker:      broker,
		cal:         cal,
		clock:       clock,
		set:         NewMonitoredSet(),
		volume:      risk.NewVolumeLimiter(cfg.DailyVolumeLimit),
		notifier:    notifier,
		results:     results,
		rates:       connectors.Rates{Broker: broker},
		exceptions:  newExceptionRepo(),
		sleep:       sleepCtx,
		jitter:      randomJitter,
		newClientID: func() string { return uuid.NewString() },
		log: logger.WithFields(map[string]interface{}{
			"component": "lifecycle",
			"broker":    broker.Name(),
		}),
	}
}

func (l *Lifecycle) Positions() *MonitoredSet {
	return l.set
}

func (l *Lifecycle) Broker() connectors.Broker {
	return l.broker
}

func (l *Lifecycle) Config() Config {
	return l.cfg
}

// Wait blocks until every reconciliation sweep has returned.
func (l *Lifecycle) Wait() {
	l.sweeps.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

func (l *Lifecycle) sleepUntil(ctx context.Context, target time.Time) error {
	return l.sleep(ctx, target.Sub(l.clock.Now()))
}

func (l *Lifecycle) occLog(occ schedule.Occurrence) *logger.Entry {
	return l.log.WithFields(map[string]interface{}{
		"trade_number": occ.Instruction.TradeNumber,
		"symbol":       occ.Instruction.Symbol,
		"side":         occ.Instruction.Side,
		"occurrence":   occ.Key(),
	})
}

func (l *Lifecycle) capture(ctx context.Context, method, level string, err error, symbol, tradeNumber string) {
	Capture(ctx, l.exceptions, Service, "lifecycle", method, level, err, map[string]interface{}{
		"symbol":       symbol,
		"trade_number": tradeNumber,
		"broker":       l.broker.Name(),
	})
}

// Enter opens the position of one occurrence:
//  1. wait until entry minus a random jitter, skip duplicates, fetch the quote
//  2. retry while the spread is too wide or the order fails
//  3. size the order, book the daily volume, place a market order
//  4. resolve the resulting position, falling back to reconciliation
//
// Once an order was accepted it is never placed again.
func (l *Lifecycle) Enter(ctx context.Context, occ schedule.Occurrence) error {
	ins := occ.Instruction
	log := l.occLog(occ)

	if err := l.sleepUntil(ctx, occ.Window.Entry.Add(-l.jitter(l.cfg.Jitter()))); err != nil {
		return err
	}

	if !l.cfg.AllowDuplicateEntry {
		dup, err := l.hasSameSidePosition(ctx, ins.Symbol, ins.Side)
		if err != nil {
			log.WithError(err).Warn("Duplicate check failed, entering anyway")
		} else if dup {
			log.Warn("Same-side position already open, skipping entry")
			notify.Notifyf(ctx, l.notifier, "[SKIP] #%s %s %s: %s position already open",
				ins.TradeNumber, ins.Symbol, ins.Side.Label(), ins.Side.Label())
			return ErrDuplicatePosition
		}
	}

	var (
		ack       model.OrderAck
		ticker    model.Ticker
		err       error
		submitted bool
	)
	for attempt := 1; attempt <= l.cfg.MaxEntryAttempts; attempt++ {
		ack, ticker, err = l.placeEntry(ctx, occ)
		if err == nil {
			break
		}
		if errors.Is(err, errOrderUnconfirmed) {
			submitted = true
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var vle *risk.VolumeLimitError
		if errors.As(err, &vle) {
			log.WithError(err).Warn("Daily volume limit reached, skipping entry")
			notify.Notifyf(ctx, l.notifier, "[SKIP] #%s %s %s: %v", ins.TradeNumber, ins.Symbol, ins.Side.Label(), err)
			return err
		}

		log.WithError(err).WithField("attempt", attempt).Warn("Entry attempt failed")
		var se *SpreadError
		if errors.As(err, &se) {
			notify.Notifyf(ctx, l.notifier, "[WAIT] #%s %s spread %s above %s (attempt %d/%d)",
				ins.TradeNumber, ins.Symbol, se.Spread, se.Threshold, attempt, l.cfg.MaxEntryAttempts)
		}
		if attempt < l.cfg.MaxEntryAttempts {
			if err := l.sleep(ctx, l.cfg.EntryRetryInterval); err != nil {
				return err
			}
		}
	}
	if err != nil {
		l.capture(ctx, "Enter", LevelError, err, ins.Symbol, ins.TradeNumber)
		if submitted {
			// an order may have filled even though every reply was lost
			rerr := l.reconcileEntry(ctx, occ, nil, ticker)
			if rerr == nil {
				return nil
			}
			notify.Notifyf(ctx, l.notifier, "[FAIL] entry #%s %s %s after %d attempts: %v",
				ins.TradeNumber, ins.Symbol, ins.Side.Label(), l.cfg.MaxEntryAttempts, err)
			return fmt.Errorf("%w: %v: %w", ErrEntryAbandoned, err, rerr)
		}
		notify.Notifyf(ctx, l.notifier, "[FAIL] entry #%s %s %s after %d attempts: %v",
			ins.TradeNumber, ins.Symbol, ins.Side.Label(), l.cfg.MaxEntryAttempts, err)
		return fmt.Errorf("%w: %v", ErrEntryAbandoned, err)
	}

	res := l.resolvePosition(ctx, ack)
	switch res.Status {
	case LookupFound:
		l.register(ctx, occ, res.Position, ack, ticker)
		return nil
	case LookupFailed:
		log.WithError(res.Err).Warn("Position lookup failed, reconciling")
	default:
		log.WithField("attempts", res.Attempts).Warn("Position not visible yet, reconciling")
	}
	return l.reconcileEntry(ctx, occ, &ack, ticker)
}

// placeEntry runs one quote, size and order attempt.
func (l *Lifecycle) placeEntry(ctx context.Context, occ schedule.Occurrence) (model.OrderAck, model.Ticker, error) {
	ins := occ.Instruction

	tickers, err := l.broker.GetTickers(ctx, []string{ins.Symbol})
	if err != nil {
		return model.OrderAck{}, model.Ticker{}, fmt.Errorf("fetch ticker: %w", err)
	}
	ticker, ok := tickers[ins.Symbol]
	if !ok {
		return model.OrderAck{}, model.Ticker{}, fmt.Errorf("no quote for %s", ins.Symbol)
	}
	if spread := ticker.Spread(); spread.GreaterThan(l.cfg.SpreadThreshold) {
		return model.OrderAck{}, ticker, &SpreadError{Symbol: ins.Symbol, Spread: spread, Threshold: l.cfg.SpreadThreshold}
	}

	size, err := l.orderSize(ctx, ins, ticker)
	if err != nil {
		return model.OrderAck{}, ticker, err
	}

	dayKey := l.cal.DateKey(occ.Window.Entry)
	if err := l.volume.Reserve(dayKey, ins.Symbol, size); err != nil {
		return model.OrderAck{}, ticker, err
	}

	req := model.OrderRequest{
		Symbol:        ins.Symbol,
		Side:          ins.Side,
		Size:          size,
		Leverage:      l.cfg.OrderLeverage(),
		ClientOrderID: l.newClientID(),
	}
	ack, err := l.broker.CreateOrder(ctx, req)
	if err != nil {
		l.volume.Release(dayKey, ins.Symbol, size)
		return model.OrderAck{}, ticker, fmt.Errorf("%w: %w", errOrderUnconfirmed, err)
	}
	if ack.Size.IsZero() {
		ack.Size = size
	}
	if ack.Symbol == "" {
		ack.Symbol = ins.Symbol
		ack.Side = ins.Side
	}

	l.occLog(occ).WithFields(map[string]interface{}{
		"order_id": ack.OrderID,
		"size":     size.String(),
		"spread":   ticker.Spread().String(),
	}).Info("Entry order accepted")
	return ack, ticker, nil
}

// orderSize uses the instruction lot when present, otherwise the auto-lot on
// the available balance.
func (l *Lifecycle) orderSize(ctx context.Context, ins model.TradeInstruction, ticker model.Ticker) (decimal.Decimal, error) {
	if ins.Lot != nil {
		return *ins.Lot, nil
	}

	balance, err := l.broker.GetBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch balance: %w", err)
	}
	in := risk.LotInput{
		Balance:   balance.Available,
		RiskRatio: l.cfg.RiskRatio,
		Leverage:  l.cfg.OrderLeverage(),
		Rate:      ticker.EntryPrice(ins.Side),
		Symbol:    ins.Symbol,
		Currency:  balance.Currency,
	}
	if risk.NeedsQuoteRate(ins.Symbol, balance.Currency) {
		if rate, err := l.rates.Rate(ctx, mapper.QuoteCurrency(ins.Symbol), risk.AccountCurrency(balance.Currency)); err == nil {
			in.QuoteRate = rate
		}
	}
	return risk.AutoLot(in)
}

func (l *Lifecycle) hasSameSidePosition(ctx context.Context, symbol string, side model.Side) (bool, error) {
	positions, err := l.broker.GetPositions(ctx, symbol)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Symbol == symbol && p.Side == side {
			return true, nil
		}
	}
	return false, nil
}

// register starts monitoring pos on behalf of occ.
func (l *Lifecycle) register(ctx context.Context, occ schedule.Occurrence, pos model.BrokerPosition, ack model.OrderAck, ticker model.Ticker) model.MonitoredPosition {
	ins := occ.Instruction
	entryPrice := pos.Price
	if !entryPrice.IsPositive() {
		entryPrice = ack.Price
	}
	if !entryPrice.IsPositive() {
		entryPrice = ticker.EntryPrice(ins.Side)
	}
	size := pos.Size
	if !size.IsPositive() {
		size = ack.Size
	}
	entryTime := l.clock.Now()

	mp := model.MonitoredPosition{
		PositionID:    pos.PositionID,
		Symbol:        ins.Symbol,
		Side:          ins.Side,
		Size:          size,
		EntryPrice:    entryPrice,
		EntryTime:     entryTime,
		ScheduledExit: occ.Window.Exit,
		TradeNumber:   ins.TradeNumber,
		OccurrenceKey: occ.Key(),
	}
	if !l.set.Add(mp) {
		l.occLog(occ).WithField("position_id", mp.PositionID).Warn("Position already monitored")
		return mp
	}

	l.occLog(occ).WithFields(map[string]interface{}{
		"position_id": mp.PositionID,
		"price":       entryPrice.String(),
		"size":        size.String(),
	}).Info("Position registered")
	notify.Notifyf(ctx, l.notifier, "[ENTRY] #%s %s %s %s @%s spread %s at %s, exit %s",
		ins.TradeNumber, ins.Symbol, ins.Side.Label(), size, entryPrice, ticker.Spread(),
		entryTime.In(l.cal.Location).Format("15:04:05"),
		occ.Window.Exit.In(l.cal.Location).Format("01-02 15:04:05"))
	return mp
}
