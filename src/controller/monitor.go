package controller

import (
	"context"
	"errors"
	"time"

	"fxscheduler/src/model"
	"fxscheduler/src/tp_sl"
)

// Monitor evaluates stop loss and take profit every MonitorInterval until ctx
// is done.
func (l *Lifecycle) Monitor(ctx context.Context) {
	if !l.cfg.Thresholds().Enabled() {
		l.log.Info("Stop loss and take profit disabled, monitor idle")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(l.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CheckPositions(ctx)
		}
	}
}

// CheckPositions runs one monitor pass and returns the number of positions
// closed. Positions within the jitter window of their scheduled exit are left
// to the exit protocol.
func (l *Lifecycle) CheckPositions(ctx context.Context) int {
	th := l.cfg.Thresholds()
	if !th.Enabled() {
		return 0
	}

	now := l.clock.Now()
	cutoff := l.cfg.Jitter()
	var symbols []string
	seen := map[string]bool{}
	var candidates []model.MonitoredPosition
	for _, p := range l.set.Snapshot() {
		if !now.Before(p.ScheduledExit.Add(-cutoff)) {
			continue
		}
		candidates = append(candidates, p)
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}
	if len(candidates) == 0 {
		return 0
	}

	tickers, err := l.broker.GetTickers(ctx, symbols)
	if err != nil {
		l.log.WithError(err).Warn("Monitor could not fetch tickers")
		return 0
	}

	closed := 0
	for _, p := range candidates {
		t, ok := tickers[p.Symbol]
		if !ok {
			l.log.WithField("symbol", p.Symbol).Debug("No quote for monitored symbol")
			continue
		}
		dec := tp_sl.Evaluate(p, t, th)
		if !dec.Triggered() {
			continue
		}
		claimed, ok := l.set.Claim(p.PositionID)
		if !ok {
			continue
		}
		l.log.WithFields(map[string]interface{}{
			"position_id": p.PositionID,
			"symbol":      p.Symbol,
			"action":      dec.Action,
			"pips":        dec.Pips.String(),
		}).Warn("Risk threshold hit")

		if _, err := l.closeWithRetry(ctx, claimed, dec.CloseReason()); err != nil {
			if errors.Is(err, ErrPositionGone) {
				continue
			}
			l.set.Restore(claimed)
			continue
		}
		closed++
	}
	return closed
}
