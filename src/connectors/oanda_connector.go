package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/mapper"
	"fxscheduler/src/model"
)

const (
	OANDAName            = "oanda"
	oandaPracticeBaseURL = "https://api-fxpractice.oanda.com"
	oandaLiveBaseURL     = "https://api-fxtrade.oanda.com"
)

type oandaError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type oandaAccountSummary struct {
	Account struct {
		Balance         string `json:"balance"`
		NAV             string `json:"NAV"`
		MarginAvailable string `json:"marginAvailable"`
		Currency        string `json:"currency"`
	} `json:"account"`
}

type oandaPriceBucket struct {
	Price string `json:"price"`
}

type oandaPrice struct {
	Instrument string             `json:"instrument"`
	Time       string             `json:"time"`
	Bids       []oandaPriceBucket `json:"bids"`
	Asks       []oandaPriceBucket `json:"asks"`
}

type oandaPricing struct {
	Prices []oandaPrice `json:"prices"`
}

type oandaFill struct {
	ID          string `json:"id"`
	Instrument  string `json:"instrument"`
	Units       string `json:"units"`
	Price       string `json:"price"`
	Time        string `json:"time"`
	TradeOpened *struct {
		TradeID string `json:"tradeID"`
		Units   string `json:"units"`
	} `json:"tradeOpened"`
}

type oandaOrderResponse struct {
	OrderFillTransaction   *oandaFill `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
}

type oandaPositionSide struct {
	Units        string `json:"units"`
	AveragePrice string `json:"averagePrice"`
	UnrealizedPL string `json:"unrealizedPL"`
}

type oandaPosition struct {
	Instrument string            `json:"instrument"`
	Long       oandaPositionSide `json:"long"`
	Short      oandaPositionSide `json:"short"`
}

type oandaPositions struct {
	Positions []oandaPosition `json:"positions"`
}

type oandaCloseResponse struct {
	LongOrderFillTransaction  *oandaFill `json:"longOrderFillTransaction"`
	ShortOrderFillTransaction *oandaFill `json:"shortOrderFillTransaction"`
}

// OANDAClient talks to the OANDA v20 REST API with a bearer token.
type OANDAClient struct {
	accountID string
	token     string
	http      *resty.Client
	now       func() time.Time
	log       *logger.Entry
}

func NewOANDAClient(cfg Config) *OANDAClient {
	baseURL := strings.TrimRight(cfg.OANDABaseURL, "/")
	if baseURL == "" {
		baseURL = oandaPracticeBaseURL
		if strings.EqualFold(cfg.OANDAEnvironment, "live") {
			baseURL = oandaLiveBaseURL
		}
	}

	gate := newRateGate(time.Minute/120, 10)
	return &OANDAClient{
		accountID: cfg.OANDAAccountID,
		token:     cfg.OANDAAccessToken,
		http:      newRestyClient(baseURL, cfg.HTTPTimeout, cfg.RetryAttempts, gate, isRetryableResp),
		now:       time.Now,
		log:       logger.WithField("broker", OANDAName),
	}
}

func (c *OANDAClient) Name() string {
	return OANDAName
}

// positionID names the long or short half of an instrument's position.
func positionID(symbol string, side model.Side) string {
	return symbol + "-" + side.Label()
}

func (c *OANDAClient) do(ctx context.Context, op, method, path string, query map[string]string, body, out interface{}) error {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetHeader("Accept-Datetime-Format", "RFC3339")
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &BrokerFailure{Broker: OANDAName, Op: op, Err: &TransientError{Op: op, Err: err}}
	}
	if isRetryableResp(resp, nil) {
		cause := fmt.Errorf("%s", strings.TrimSpace(string(resp.Body())))
		if resp.StatusCode() == http.StatusTooManyRequests {
			cause = ErrRateLimited
		}
		return &BrokerFailure{Broker: OANDAName, Op: op, Err: &TransientError{Op: op, Status: resp.StatusCode(), Err: cause}}
	}
	if resp.StatusCode() >= 400 {
		var apiErr oandaError
		_ = json.Unmarshal(resp.Body(), &apiErr)
		failure := &BrokerFailure{Broker: OANDAName, Op: op, Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
		if failure.Message == "" {
			failure.Message = fmt.Sprintf("HTTP %d", resp.StatusCode())
		}
		if resp.StatusCode() == http.StatusNotFound {
			failure.Err = ErrPositionNotFound
		}
		return failure
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &BrokerFailure{Broker: OANDAName, Op: op, Message: "unexpected payload", Err: err}
	}
	return nil
}

func (c *OANDAClient) accountPath(suffix string) string {
	return "/v3/accounts/" + url.PathEscape(c.accountID) + suffix
}

func (c *OANDAClient) GetBalance(ctx context.Context) (model.Balance, error) {
	var summary oandaAccountSummary
	if err := c.do(ctx, "GetBalance", http.MethodGet, c.accountPath("/summary"), nil, nil, &summary); err != nil {
		return model.Balance{}, err
	}
	return model.Balance{
		Available: mapper.DecimalSafe("marginAvailable", summary.Account.MarginAvailable),
		Total:     mapper.DecimalSafe("balance", summary.Account.Balance),
		Currency:  summary.Account.Currency,
	}, nil
}

func (c *OANDAClient) GetTickers(ctx context.Context, symbols []string) (map[string]model.Ticker, error) {
	out := make(map[string]model.Ticker, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var pricing oandaPricing
	query := map[string]string{"instruments": strings.Join(symbols, ",")}
	if err := c.do(ctx, "GetTickers", http.MethodGet, c.accountPath("/pricing"), query, nil, &pricing); err != nil {
		return nil, err
	}
	for _, p := range pricing.Prices {
		if len(p.Bids) == 0 || len(p.Asks) == 0 {
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, p.Time)
		out[p.Instrument] = model.Ticker{
			Symbol: p.Instrument,
			Bid:    mapper.DecimalSafe("bid", p.Bids[0].Price),
			Ask:    mapper.DecimalSafe("ask", p.Asks[0].Price),
			Time:   ts,
		}
	}
	return out, nil
}

func (c *OANDAClient) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	order := map[string]interface{}{
		"type":         "MARKET",
		"instrument":   req.Symbol,
		"units":        mapper.SignedUnits(req.Side, req.Size),
		"timeInForce":  "FOK",
		"positionFill": "DEFAULT",
	}
	if req.ClientOrderID != "" {
		order["clientExtensions"] = map[string]string{"id": req.ClientOrderID}
	}

	var resp oandaOrderResponse
	if err := c.do(withoutRetry(ctx), "CreateOrder", http.MethodPost, c.accountPath("/orders"), nil, map[string]interface{}{"order": order}, &resp); err != nil {
		return model.OrderAck{}, err
	}
	if resp.OrderFillTransaction == nil {
		reason := "order not filled"
		if resp.OrderCancelTransaction != nil {
			reason = resp.OrderCancelTransaction.Reason
		}
		return model.OrderAck{}, &BrokerFailure{Broker: OANDAName, Op: "CreateOrder", Code: reason, Message: GetErrorMsg(reason)}
	}

	fill := resp.OrderFillTransaction
	side, size := mapper.SideFromUnits(mapper.DecimalSafe("units", fill.Units))
	if size.IsZero() {
		side, size = req.Side, req.Size
	}
	ack := model.OrderAck{
		OrderID:       fill.ID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          side,
		Size:          size,
		Price:         mapper.DecimalSafe("price", fill.Price),
		PositionID:    positionID(req.Symbol, side),
		CreatedAt:     c.now(),
	}
	c.log.WithFields(map[string]interface{}{
		"symbol":   ack.Symbol,
		"side":     ack.Side,
		"size":     ack.Size.String(),
		"order_id": ack.OrderID,
		"price":    ack.Price.String(),
	}).Info("Market order filled")
	return ack, nil
}

func (c *OANDAClient) ClosePosition(ctx context.Context, pos model.BrokerPosition) (decimal.Decimal, error) {
	return c.closeUnits(ctx, "ClosePosition", pos, pos.Size.Truncate(0).String())
}

// ClosePositionDirect closes every unit on the position's side.
func (c *OANDAClient) ClosePositionDirect(ctx context.Context, pos model.BrokerPosition) (decimal.Decimal, error) {
	return c.closeUnits(ctx, "ClosePositionDirect", pos, "ALL")
}

func (c *OANDAClient) closeUnits(ctx context.Context, op string, pos model.BrokerPosition, units string) (decimal.Decimal, error) {
	body := map[string]string{"longUnits": units}
	if pos.Side == model.SideSell {
		body = map[string]string{"shortUnits": units}
	}

	var resp oandaCloseResponse
	path := c.accountPath("/positions/" + url.PathEscape(pos.Symbol) + "/close")
	if err := c.do(ctx, op, http.MethodPut, path, nil, body, &resp); err != nil {
		return decimal.Zero, err
	}

	fill := resp.LongOrderFillTransaction
	if pos.Side == model.SideSell {
		fill = resp.ShortOrderFillTransaction
	}
	if fill == nil {
		return decimal.Zero, nil
	}
	return mapper.DecimalSafe("price", fill.Price), nil
}

func (c *OANDAClient) GetPositions(ctx context.Context, symbol string) ([]model.BrokerPosition, error) {
	var resp oandaPositions
	if err := c.do(ctx, "GetPositions", http.MethodGet, c.accountPath("/openPositions"), nil, nil, &resp); err != nil {
		return nil, err
	}

	var out []model.BrokerPosition
	for _, p := range resp.Positions {
		if symbol != "" && p.Instrument != symbol {
			continue
		}
		for _, half := range []struct {
			side model.Side
			data oandaPositionSide
		}{{model.SideBuy, p.Long}, {model.SideSell, p.Short}} {
			units := mapper.DecimalSafe("units", half.data.Units).Abs()
			if units.IsZero() {
				continue
			}
			out = append(out, model.BrokerPosition{
				PositionID:    positionID(p.Instrument, half.side),
				Symbol:        p.Instrument,
				Side:          half.side,
				Size:          units,
				Price:         mapper.DecimalSafe("averagePrice", half.data.AveragePrice),
				UnrealizedPnL: mapper.DecimalSafe("unrealizedPL", half.data.UnrealizedPL),
			})
		}
	}
	return out, nil
}

// GetPositionByOrderID matches the aggregated position of the order's symbol
// and side. OANDA nets fills per side, so the position must hold at least the
// filled units.
func (c *OANDAClient) GetPositionByOrderID(ctx context.Context, ack model.OrderAck) (model.BrokerPosition, error) {
	positions, err := c.GetPositions(ctx, ack.Symbol)
	if err != nil {
		return model.BrokerPosition{}, err
	}
	for _, p := range positions {
		if p.Side != ack.Side || p.Size.LessThan(ack.Size) {
			continue
		}
		if !ack.Price.IsZero() && p.Size.Equal(ack.Size) {
			p.Price = ack.Price
		}
		p.OpenedAt = ack.CreatedAt
		return p, nil
	}
	return model.BrokerPosition{}, ErrPositionNotFound
}
