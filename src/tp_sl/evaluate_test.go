package tp_sl

import (
	"testing"

	"github.com/shopspring/decimal"

	"fxscheduler/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func position(side model.Side, symbol, entry string) model.MonitoredPosition {
	return model.MonitoredPosition{PositionID: "p1", Symbol: symbol, Side: side, Size: d("1000"), EntryPrice: d(entry)}
}

func th(sl, tp string) Thresholds {
	return Thresholds{StopLossPips: d(sl), TakeProfitPips: d(tp)}
}

func TestEvaluate_StopLossNotReached(t *testing.T) {
	// long from 150.000, bid 149.600 => -40 pips, stop at -50
	dec := Evaluate(position(model.SideBuy, "USD_JPY", "150.000"), model.Ticker{Bid: d("149.600"), Ask: d("149.610")}, th("50", "0"))
	if dec.Triggered() {
		t.Fatalf("expected hold at -40 pips, got %s", dec.Action)
	}
	if !dec.Pips.Equal(d("-40")) {
		t.Fatalf("expected -40 pips, got=%s", dec.Pips)
	}
}

func TestEvaluate_StopLossAtThreshold(t *testing.T) {
	dec := Evaluate(position(model.SideBuy, "USD_JPY", "150.000"), model.Ticker{Bid: d("149.500"), Ask: d("149.510")}, th("50", "0"))
	if dec.Action != StopLoss {
		t.Fatalf("expected stop loss at -50 pips, got %s", dec.Action)
	}
	if dec.CloseReason() != model.CloseReasonStopLoss {
		t.Fatalf("unexpected close reason %s", dec.CloseReason())
	}
	if !dec.Price.Equal(d("149.500")) {
		t.Fatalf("long must be priced at bid, got=%s", dec.Price)
	}
}

func TestEvaluate_StopLossComparesUnroundedPips(t *testing.T) {
	// bid 149.60004 => -39.996 pips, which rounds to -40 for display only
	dec := Evaluate(position(model.SideBuy, "USD_JPY", "150.00000"), model.Ticker{Bid: d("149.60004"), Ask: d("149.61000")}, th("40", "0"))
	if dec.Triggered() {
		t.Fatalf("expected hold at -39.996 pips, got %s", dec.Action)
	}
	if !dec.Pips.Equal(d("-40")) {
		t.Fatalf("expected displayed pips -40, got=%s", dec.Pips)
	}

	// take profit 39.996 short of 40 holds too
	dec = Evaluate(position(model.SideSell, "USD_JPY", "150.00000"), model.Ticker{Bid: d("149.59000"), Ask: d("149.60004")}, th("0", "40"))
	if dec.Triggered() {
		t.Fatalf("expected hold at +39.996 pips, got %s", dec.Action)
	}
}

func TestEvaluate_TakeProfitNotReached(t *testing.T) {
	// short EUR_USD from 1.1000, ask 1.0970 => +30 pips, target 50
	dec := Evaluate(position(model.SideSell, "EUR_USD", "1.1000"), model.Ticker{Bid: d("1.0968"), Ask: d("1.0970")}, th("0", "50"))
	if dec.Triggered() {
		t.Fatalf("expected hold at +30 pips, got %s", dec.Action)
	}
	if !dec.Price.Equal(d("1.0970")) {
		t.Fatalf("short must be priced at ask, got=%s", dec.Price)
	}
}

func TestEvaluate_TakeProfitReached(t *testing.T) {
	dec := Evaluate(position(model.SideSell, "EUR_USD", "1.1000"), model.Ticker{Bid: d("1.0948"), Ask: d("1.0950")}, th("20", "50"))
	if dec.Action != TakeProfit {
		t.Fatalf("expected take profit at +50 pips, got %s", dec.Action)
	}
	if dec.CloseReason() != model.CloseReasonTakeProfit {
		t.Fatalf("unexpected close reason %s", dec.CloseReason())
	}
}

func TestEvaluate_ZeroDisables(t *testing.T) {
	dec := Evaluate(position(model.SideBuy, "USD_JPY", "150.000"), model.Ticker{Bid: d("140.000"), Ask: d("140.010")}, th("0", "0"))
	if dec.Triggered() {
		t.Fatalf("disabled thresholds must never trigger, got %s", dec.Action)
	}
	if th("0", "0").Enabled() {
		t.Fatalf("expected thresholds disabled")
	}
	if !th("0", "10").Enabled() {
		t.Fatalf("expected thresholds enabled")
	}
}

func TestEvaluate_LongStopAndTargetScenario(t *testing.T) {
	pos := position(model.SideBuy, "USD_JPY", "150.000")
	limits := th("40", "50")

	dec := Evaluate(pos, model.Ticker{Bid: d("149.500"), Ask: d("149.505")}, limits)
	if dec.Action != StopLoss || !dec.Pips.Equal(d("-50")) {
		t.Fatalf("expected stop loss at -50 pips, got %s %s", dec.Action, dec.Pips)
	}

	dec = Evaluate(pos, model.Ticker{Bid: d("150.300"), Ask: d("150.305")}, limits)
	if dec.Triggered() || !dec.Pips.Equal(d("30")) {
		t.Fatalf("expected hold at +30 pips, got %s %s", dec.Action, dec.Pips)
	}
}
