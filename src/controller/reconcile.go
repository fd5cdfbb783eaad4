package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fxscheduler/src/connectors"
	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/schedule"
)

type LookupStatus int

const (
	LookupNotYet LookupStatus = iota
	LookupFound
	LookupFailed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupFailed:
		return "failed"
	default:
		return "not_yet"
	}
}

// LookupResult is the outcome of polling for the position opened by an order.
type LookupResult struct {
	Status   LookupStatus
	Position model.BrokerPosition
	Err      error
	Attempts int
}

// resolvePosition polls the broker for the position of ack. NotYet means the
// fill never surfaced within the attempts; Failed carries the last error.
func (l *Lifecycle) resolvePosition(ctx context.Context, ack model.OrderAck) LookupResult {
	res := LookupResult{Status: LookupNotYet}
	for attempt := 1; attempt <= l.cfg.PositionLookupAttempts; attempt++ {
		res.Attempts = attempt
		pos, err := l.broker.GetPositionByOrderID(ctx, ack)
		switch {
		case err == nil:
			res.Status, res.Position, res.Err = LookupFound, pos, nil
			return res
		case errors.Is(err, connectors.ErrPositionNotFound):
			res.Status, res.Err = LookupNotYet, nil
		default:
			res.Status, res.Err = LookupFailed, err
		}
		if attempt < l.cfg.PositionLookupAttempts {
			if err := l.sleep(ctx, l.cfg.PositionLookupDelay); err != nil {
				return LookupResult{Status: LookupFailed, Err: err, Attempts: attempt}
			}
		}
	}
	return res
}

// ReconciliationMismatch reports a broker state that differs from what this
// process expected. The broker state wins.
type ReconciliationMismatch struct {
	Symbol  string
	Side    model.Side
	OrderID string
	Found   []model.BrokerPosition
	Adopted string
}

func (e *ReconciliationMismatch) Error() string {
	ids := make([]string, 0, len(e.Found))
	for _, p := range e.Found {
		ids = append(ids, p.PositionID)
	}
	order := "order " + e.OrderID + " did not resolve"
	if e.OrderID == "" {
		order = "order was never acknowledged"
	}
	msg := fmt.Sprintf("reconciliation mismatch on %s %s: %s, broker holds [%s]",
		e.Symbol, e.Side, order, strings.Join(ids, ","))
	if e.Adopted != "" {
		msg += ", adopted " + e.Adopted
	}
	return msg
}

// unowned returns the broker positions of symbol and side not monitored by
// this process.
func (l *Lifecycle) unowned(ctx context.Context, symbol string, side model.Side) ([]model.BrokerPosition, error) {
	positions, err := l.broker.GetPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	var out []model.BrokerPosition
	for _, p := range positions {
		if p.Symbol == symbol && p.Side == side && !l.set.Owned(p.PositionID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// reconcileEntry runs when an order's position could not be resolved, either
// because the lookup gave up or because no order was ever acknowledged (ack is
// nil). A same-side position on the broker is adopted; otherwise a background
// sweep closes whatever surfaces before the exit grace period ends.
func (l *Lifecycle) reconcileEntry(ctx context.Context, occ schedule.Occurrence, ack *model.OrderAck, ticker model.Ticker) error {
	ins := occ.Instruction
	if ack == nil {
		ack = &model.OrderAck{Symbol: ins.Symbol, Side: ins.Side}
	}
	log := l.occLog(occ).WithField("order_id", ack.OrderID)

	found, err := l.unowned(ctx, ins.Symbol, ins.Side)
	if err != nil {
		log.WithError(err).Warn("Reconciliation lookup failed")
	}

	mismatch := &ReconciliationMismatch{Symbol: ins.Symbol, Side: ins.Side, OrderID: ack.OrderID, Found: found}
	if len(found) > 0 {
		mismatch.Adopted = found[0].PositionID
		log.WithError(mismatch).Warn("Adopting broker position")
		notify.Notifyf(ctx, l.notifier, "[RECONCILE] #%s %v", ins.TradeNumber, mismatch)
		l.capture(ctx, "reconcileEntry", LevelWarn, mismatch, ins.Symbol, ins.TradeNumber)
		l.register(ctx, occ, found[0], *ack, ticker)
		return nil
	}

	log.WithError(mismatch).Warn("No position found, starting reconciliation sweep")
	notify.Notifyf(ctx, l.notifier, "[RECONCILE] #%s %s %s: %s but no position visible, sweeping until %s",
		ins.TradeNumber, ins.Symbol, ins.Side.Label(), orderState(ack),
		occ.Window.Exit.Add(l.cfg.ReconcileGrace).In(l.cal.Location).Format("15:04:05"))
	l.capture(ctx, "reconcileEntry", LevelWarn, mismatch, ins.Symbol, ins.TradeNumber)

	l.sweeps.Add(1)
	go func() {
		defer l.sweeps.Done()
		l.reconcileSweep(ctx, occ)
	}()
	return mismatch
}

func orderState(ack *model.OrderAck) string {
	if ack.OrderID == "" {
		return "order unconfirmed"
	}
	return "order " + ack.OrderID + " accepted"
}

// reconcileSweep polls until exit plus the grace period and closes every
// unowned same-side position it finds.
func (l *Lifecycle) reconcileSweep(ctx context.Context, occ schedule.Occurrence) {
	ins := occ.Instruction
	deadline := occ.Window.Exit.Add(l.cfg.ReconcileGrace)
	log := l.occLog(occ)

	for !l.clock.Now().After(deadline) {
		found, err := l.unowned(ctx, ins.Symbol, ins.Side)
		if err != nil {
			log.WithError(err).Warn("Reconciliation sweep lookup failed")
		}
		if len(found) > 0 {
			for _, p := range found {
				l.closeAdopted(ctx, occ, p, model.CloseReasonReconcile)
			}
			return
		}
		if err := l.sleep(ctx, l.cfg.ReconcileInterval); err != nil {
			return
		}
	}
	log.Info("Reconciliation sweep ended without finding a position")
}

// closeAdopted closes a broker position this process never registered.
func (l *Lifecycle) closeAdopted(ctx context.Context, occ schedule.Occurrence, p model.BrokerPosition, reason string) {
	mp := monitoredFromBroker(p)
	mp.ScheduledExit = occ.Window.Exit
	mp.TradeNumber = occ.Instruction.TradeNumber
	mp.OccurrenceKey = occ.Key()
	if _, err := l.closeWithRetry(ctx, mp, reason); err != nil {
		l.occLog(occ).WithError(err).Error("Failed to close reconciled position")
	}
}

func monitoredFromBroker(p model.BrokerPosition) model.MonitoredPosition {
	return model.MonitoredPosition{
		PositionID: p.PositionID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Size:       p.Size,
		EntryPrice: p.Price,
		EntryTime:  p.OpenedAt,
	}
}
