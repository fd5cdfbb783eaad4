package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fxscheduler/src/connectors"
	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/schedule"
)

// ErrPositionGone means the broker no longer holds a position we tried to close.
var ErrPositionGone = errors.New("position already closed at broker")

// Exit closes the positions of one occurrence at its scheduled exit. When
// nothing is monitored for the occurrence, unowned broker positions of the
// same symbol and side are closed instead.
func (l *Lifecycle) Exit(ctx context.Context, occ schedule.Occurrence) error {
	if err := l.sleepUntil(ctx, occ.Window.Exit.Add(-l.jitter(l.cfg.Jitter()))); err != nil {
		return err
	}

	positions := l.set.ClaimOccurrence(occ.Key())
	if len(positions) == 0 {
		return l.reconcileExit(ctx, occ)
	}

	var errs []error
	for _, p := range positions {
		if _, err := l.closeWithRetry(ctx, p, model.CloseReasonScheduled); err != nil && !errors.Is(err, ErrPositionGone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Lifecycle) reconcileExit(ctx context.Context, occ schedule.Occurrence) error {
	ins := occ.Instruction
	found, err := l.unowned(ctx, ins.Symbol, ins.Side)
	if err != nil {
		return fmt.Errorf("reconcile exit: %w", err)
	}
	if len(found) == 0 {
		l.occLog(occ).Debug("Nothing to close at exit")
		return nil
	}

	l.occLog(occ).WithField("positions", len(found)).Warn("Closing unmonitored positions at exit")
	var errs []error
	for _, p := range found {
		mp := monitoredFromBroker(p)
		mp.ScheduledExit = occ.Window.Exit
		mp.TradeNumber = ins.TradeNumber
		mp.OccurrenceKey = occ.Key()
		if _, err := l.closeWithRetry(ctx, mp, model.CloseReasonReconcile); err != nil && !errors.Is(err, ErrPositionGone) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// closeWithRetry closes pos with the regular path, then the direct path, and
// raises a critical alert when both fail. The caller must own pos, either
// claimed from the set or never registered in it.
func (l *Lifecycle) closeWithRetry(ctx context.Context, pos model.MonitoredPosition, reason string) (model.TradeResult, error) {
	defer l.set.Finish(pos.PositionID)

	log := l.log.WithFields(map[string]interface{}{
		"position_id":  pos.PositionID,
		"symbol":       pos.Symbol,
		"side":         pos.Side,
		"trade_number": pos.TradeNumber,
		"reason":       reason,
	})
	bp := pos.Broker()

	var (
		price decimal.Decimal
		err   error
	)
	for attempt := 1; attempt <= l.cfg.MaxExitAttempts; attempt++ {
		price, err = l.broker.ClosePosition(ctx, bp)
		if err == nil {
			break
		}
		if errors.Is(err, connectors.ErrPositionNotFound) {
			log.Warn("Position already gone at broker")
			notify.Notifyf(ctx, l.notifier, "[GONE] #%s %s %s %s was already closed at the broker",
				pos.TradeNumber, pos.Symbol, pos.Side.Label(), pos.PositionID)
			return model.TradeResult{}, ErrPositionGone
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Close attempt failed")
		if attempt < l.cfg.MaxExitAttempts {
			if serr := l.sleep(ctx, l.cfg.ExitRetryInterval); serr != nil {
				break
			}
		}
	}

	if err != nil {
		log.WithError(err).Error("Close retries exhausted, trying direct close")
		price, err = l.broker.ClosePositionDirect(ctx, bp)
	}
	if err != nil {
		l.capture(ctx, "closeWithRetry", LevelCritical, err, pos.Symbol, pos.TradeNumber)
		notify.Notifyf(ctx, l.notifier, "[CRITICAL] failed to close #%s %s %s %s (%s): %v. Manual action required.",
			pos.TradeNumber, pos.Symbol, pos.Side.Label(), pos.Size, pos.PositionID, err)
		return model.TradeResult{}, fmt.Errorf("close %s: %w", pos.PositionID, err)
	}

	if !price.IsPositive() {
		price = l.fallbackExitPrice(ctx, pos)
	}
	if pos.EntryTime.IsZero() {
		pos.EntryTime = l.clock.Now()
	}
	pos.Closed = true

	if l.results == nil {
		return model.TradeResult{}, nil
	}
	return l.results.Record(ctx, pos, price, l.clock.Now(), reason), nil
}

// fallbackExitPrice prices a close whose fill is unknown at the current quote,
// or at the entry price when no quote is available.
func (l *Lifecycle) fallbackExitPrice(ctx context.Context, pos model.MonitoredPosition) decimal.Decimal {
	tickers, err := l.broker.GetTickers(ctx, []string{pos.Symbol})
	if err == nil {
		if t, ok := tickers[pos.Symbol]; ok && t.ExitPrice(pos.Side).IsPositive() {
			return t.ExitPrice(pos.Side)
		}
	}
	l.log.WithError(err).WithField("symbol", pos.Symbol).Warn("Exit price unknown, using entry price")
	return pos.EntryPrice
}

// CloseAll closes every broker position. Monitored positions keep their
// trade metadata in the result.
func (l *Lifecycle) CloseAll(ctx context.Context, reason string) (CloseSummary, error) {
	summary := CloseSummary{}
	positions, err := l.broker.GetPositions(ctx, "")
	if err != nil {
		return summary, fmt.Errorf("list positions: %w", err)
	}
	l.log.WithFields(map[string]interface{}{
		"positions": len(positions),
		"reason":    reason,
	}).Warn("Closing all positions")

	var errs []error
	for _, p := range positions {
		mp, ok := l.set.Claim(p.PositionID)
		if !ok {
			if l.set.Owned(p.PositionID) {
				// being closed by another caller
				continue
			}
			mp = monitoredFromBroker(p)
		}
		res, err := l.closeWithRetry(ctx, mp, reason)
		switch {
		case err == nil:
			summary.add(res)
		case errors.Is(err, ErrPositionGone):
		default:
			summary.Failed++
			errs = append(errs, err)
		}
	}

	notify.Notifyf(ctx, l.notifier, "[CLOSE ALL] %s: %s", reason, summary)
	return summary, errors.Join(errs...)
}

// SweepOutOfSchedule force-closes positions held while no schedule window is
// open. It does nothing close to a scheduled entry or exit.
func (l *Lifecycle) SweepOutOfSchedule(ctx context.Context, sched *schedule.Schedule) (CloseSummary, error) {
	now := l.clock.Now()
	if sched.NearScheduleTime(now, l.cal.Buffer) || sched.InSchedule(now) {
		return CloseSummary{}, nil
	}

	positions, err := l.broker.GetPositions(ctx, "")
	if err != nil {
		return CloseSummary{}, fmt.Errorf("list positions: %w", err)
	}
	if len(positions) == 0 {
		return CloseSummary{}, nil
	}

	l.log.WithField("positions", len(positions)).Warn("Positions held outside the schedule")
	notify.Notifyf(ctx, l.notifier, "[SWEEP] %d position(s) open outside the schedule, closing", len(positions))
	return l.CloseAll(ctx, model.CloseReasonOutOfSchedule)
}
