package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fxscheduler/src/mapper"
	"fxscheduler/src/model"
)

// Broker is the capability the trading core needs from an FX account.
type Broker interface {
	Name() string
	GetBalance(ctx context.Context) (model.Balance, error)
	// GetTickers returns quotes keyed by symbol. Symbols the broker does not
	// quote are absent from the map.
	GetTickers(ctx context.Context, symbols []string) (map[string]model.Ticker, error)
	CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error)
	// ClosePosition offsets a single position and returns the execution
	// price. A zero price means the close went through but the fill price is
	// not known yet.
	ClosePosition(ctx context.Context, pos model.BrokerPosition) (decimal.Decimal, error)
	// ClosePositionDirect is the last resort close path used after
	// ClosePosition failed repeatedly.
	ClosePositionDirect(ctx context.Context, pos model.BrokerPosition) (decimal.Decimal, error)
	// GetPositions lists open positions, all of them when symbol is empty.
	GetPositions(ctx context.Context, symbol string) ([]model.BrokerPosition, error)
	// GetPositionByOrderID returns ErrPositionNotFound while the fill of the
	// order has not surfaced as a position.
	GetPositionByOrderID(ctx context.Context, ack model.OrderAck) (model.BrokerPosition, error)
}

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrRateLimited      = errors.New("rate limited")
)

// TransientError is a failure worth retrying: timeouts, 5xx, 429/408 and
// broker rate limit codes.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient failure (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// BrokerFailure is a definitive rejection or a transient failure that
// outlived its retries.
type BrokerFailure struct {
	Broker  string
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *BrokerFailure) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Broker, e.Op)
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BrokerFailure) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Rates prices currencies against each other from the broker's quotes.
type Rates struct {
	Broker Broker
}

// Rate is the value of one unit of from in to: the bid of from_to, or one
// over the ask of to_from when only the inverse pair is quoted.
func (r Rates) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	direct, inverse := mapper.ConversionSymbols(from, to)
	if t, err := r.quote(ctx, direct); err == nil && t.Bid.IsPositive() {
		return t.Bid, nil
	}
	t, err := r.quote(ctx, inverse)
	if err != nil {
		return decimal.Zero, err
	}
	if !t.Ask.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s not quoted by %s", inverse, r.Broker.Name())
	}
	return decimal.NewFromInt(1).Div(t.Ask), nil
}

// AccountCurrency is the currency the broker account is held in.
func (r Rates) AccountCurrency(ctx context.Context) (string, error) {
	balance, err := r.Broker.GetBalance(ctx)
	if err != nil {
		return "", err
	}
	return balance.Currency, nil
}

func (r Rates) quote(ctx context.Context, symbol string) (model.Ticker, error) {
	tickers, err := r.Broker.GetTickers(ctx, []string{symbol})
	if err != nil {
		return model.Ticker{}, err
	}
	t, ok := tickers[symbol]
	if !ok {
		return model.Ticker{}, fmt.Errorf("%s not quoted by %s", symbol, r.Broker.Name())
	}
	return t, nil
}
