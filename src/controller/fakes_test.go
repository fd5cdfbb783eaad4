package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fxscheduler/src/connectors"
	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/schedule"
	"fxscheduler/src/tradingtime"
)

// fakeBroker keeps positions in memory. Failures are queued per call.
type fakeBroker struct {
	mu sync.Mutex

	tickers   map[string]model.Ticker
	tickerErr error
	balance   model.Balance

	positions []model.BrokerPosition
	pending   map[string]model.BrokerPosition
	orders    []model.OrderRequest
	orderErrs []error
	nextID    int

	// hideFills keeps new positions out of GetPositions until the
	// revealOnCall-th GetPositions call.
	hideFills    bool
	hidden       []model.BrokerPosition
	revealOnCall int
	listCalls    int

	lookupMisses int
	lookupErr    error

	closePrice   decimal.Decimal
	closeErrs    []error
	directErr    error
	closed       []string
	directClosed []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		tickers: map[string]model.Ticker{
			"USD_JPY": {Symbol: "USD_JPY", Bid: d("150.000"), Ask: d("150.005")},
		},
		balance: model.Balance{Available: d("1000000"), Total: d("1000000"), Currency: "JPY"},
		pending: map[string]model.BrokerPosition{},
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fakeBroker) Name() string { return "fake" }

func (f *fakeBroker) GetBalance(context.Context) (model.Balance, error) {
	return f.balance, nil
}

func (f *fakeBroker) GetTickers(_ context.Context, symbols []string) (map[string]model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	out := map[string]model.Ticker{}
	for _, s := range symbols {
		if t, ok := f.tickers[s]; ok {
			out[s] = t
		}
	}
	return out, nil
}

func (f *fakeBroker) setTicker(symbol, bid, ask string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers[symbol] = model.Ticker{Symbol: symbol, Bid: d(bid), Ask: d(ask)}
}

func (f *fakeBroker) CreateOrder(_ context.Context, req model.OrderRequest) (model.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.orderErrs) > 0 {
		err := f.orderErrs[0]
		f.orderErrs = f.orderErrs[1:]
		if err != nil {
			return model.OrderAck{}, err
		}
	}
	f.orders = append(f.orders, req)
	f.nextID++
	price := f.tickers[req.Symbol].EntryPrice(req.Side)
	pos := model.BrokerPosition{
		PositionID: fmt.Sprintf("P%d", f.nextID),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Size:       req.Size,
		Price:      price,
	}
	ack := model.OrderAck{
		OrderID:       fmt.Sprintf("O%d", f.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Size:          req.Size,
	}
	f.pending[ack.OrderID] = pos
	if f.hideFills {
		f.hidden = append(f.hidden, pos)
	} else {
		f.positions = append(f.positions, pos)
	}
	return ack, nil
}

func (f *fakeBroker) take(id string) bool {
	for i, p := range f.positions {
		if p.PositionID == id {
			f.positions = append(f.positions[:i], f.positions[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeBroker) ClosePosition(_ context.Context, pos model.BrokerPosition) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.closeErrs) > 0 {
		err := f.closeErrs[0]
		f.closeErrs = f.closeErrs[1:]
		if err != nil {
			return decimal.Zero, err
		}
	}
	if !f.take(pos.PositionID) {
		return decimal.Zero, connectors.ErrPositionNotFound
	}
	f.closed = append(f.closed, pos.PositionID)
	return f.closePrice, nil
}

func (f *fakeBroker) ClosePositionDirect(_ context.Context, pos model.BrokerPosition) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.directErr != nil {
		return decimal.Zero, f.directErr
	}
	f.take(pos.PositionID)
	f.directClosed = append(f.directClosed, pos.PositionID)
	return f.closePrice, nil
}

func (f *fakeBroker) GetPositions(_ context.Context, symbol string) ([]model.BrokerPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.revealOnCall > 0 && f.listCalls >= f.revealOnCall {
		f.positions = append(f.positions, f.hidden...)
		f.hidden = nil
	}
	var out []model.BrokerPosition
	for _, p := range f.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBroker) GetPositionByOrderID(_ context.Context, ack model.OrderAck) (model.BrokerPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return model.BrokerPosition{}, f.lookupErr
	}
	if f.lookupMisses > 0 {
		f.lookupMisses--
		return model.BrokerPosition{}, connectors.ErrPositionNotFound
	}
	pos, ok := f.pending[ack.OrderID]
	if !ok {
		return model.BrokerPosition{}, connectors.ErrPositionNotFound
	}
	return pos, nil
}

func (f *fakeBroker) addPosition(p model.BrokerPosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, p)
}

func (f *fakeBroker) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type mockExceptionRepo struct {
	mu    sync.Mutex
	items []*model.Exception
}

func (m *mockExceptionRepo) Create(_ context.Context, exc *model.Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, exc)
	return nil
}

func (m *mockExceptionRepo) levels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.items {
		out = append(out, e.Level)
	}
	return out
}

type mockTradeResultRepo struct {
	mu    sync.Mutex
	items []model.TradeResult
	err   error
}

func (m *mockTradeResultRepo) Create(_ context.Context, r *model.TradeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, *r)
	return nil
}

func (m *mockTradeResultRepo) all() []model.TradeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TradeResult(nil), m.items...)
}

type harness struct {
	l          *Lifecycle
	broker     *fakeBroker
	clock      *tradingtime.ManualClock
	cal        *tradingtime.Calendar
	messages   *notify.Recorder
	results    *mockTradeResultRepo
	exceptions *mockExceptionRepo
}

var tokyo = mustLocation("Asia/Tokyo")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func testConfig() Config {
	return Config{
		SpreadThreshold:        d("0.01"),
		EntryRetryInterval:     3 * time.Second,
		MaxEntryAttempts:       3,
		ExitRetryInterval:      3 * time.Second,
		MaxExitAttempts:        3,
		MonitorInterval:        5 * time.Second,
		PositionCheckInterval:  10 * time.Minute,
		Leverage:               25,
		RiskRatio:              d("1.0"),
		AutoLot:                true,
		FixedLotLeverage:       18,
		DailyVolumeLimit:       d("15000000"),
		PositionLookupAttempts: 5,
		PositionLookupDelay:    2 * time.Second,
		ReconcileInterval:      30 * time.Second,
		ReconcileGrace:         10 * time.Minute,
	}
}

func newHarness(t *testing.T, cfg Config, now time.Time) *harness {
	t.Helper()
	h := &harness{
		broker:     newFakeBroker(),
		clock:      tradingtime.NewManualClock(now),
		cal:        tradingtime.NewCalendar(tokyo, tradingtime.DefaultBoundary, tradingtime.DefaultBuffer),
		messages:   notify.NewRecorder(100),
		results:    &mockTradeResultRepo{},
		exceptions: &mockExceptionRepo{},
	}

	origExc, origRes := newExceptionRepo, newTradeResultRepo
	newExceptionRepo = func() exceptionRepository { return h.exceptions }
	newTradeResultRepo = func() tradeResultRepository { return h.results }
	t.Cleanup(func() {
		newExceptionRepo, newTradeResultRepo = origExc, origRes
	})

	rec := NewResultRecorder("run-1", h.broker.Name(), h.cal, connectors.Rates{Broker: h.broker}, h.messages)
	h.l = NewLifecycle(cfg, h.broker, h.cal, h.clock, h.messages, rec)
	h.l.sleep = func(ctx context.Context, d time.Duration) error {
		if d > 0 {
			h.clock.Advance(d)
		}
		return ctx.Err()
	}
	h.l.jitter = func(time.Duration) time.Duration { return 0 }
	h.l.newClientID = func() string { return "client-1" }
	return h
}

func tokyoTime(day, hour, min, sec int) time.Time {
	return time.Date(2024, 3, day, hour, min, sec, 0, tokyo)
}

// occurrence places one instruction on the trading day of now.
func (h *harness) occurrence(t *testing.T, side model.Side, symbol, entry, exit string, lot *decimal.Decimal) schedule.Occurrence {
	t.Helper()
	ins := model.TradeInstruction{
		TradeNumber: "1",
		Side:        side,
		Symbol:      symbol,
		Entry:       tradingtime.MustParseTime(entry),
		Exit:        tradingtime.MustParseTime(exit),
		Lot:         lot,
	}
	occs := schedule.New(h.cal, []model.TradeInstruction{ins}).TradesForToday(h.clock.Now())
	if len(occs) != 1 {
		t.Fatalf("expected one occurrence, got %d", len(occs))
	}
	return occs[0]
}

func lot(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func hasMessage(msgs []string, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

var errBroker = errors.New("broker unavailable")
