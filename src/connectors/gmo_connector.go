package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/mapper"
	"fxscheduler/src/model"
)

const (
	GMOName              = "gmo"
	gmoDefaultPrivateURL = "https://forex-api.coin.z.com/private"
	gmoDefaultPublicURL  = "https://forex-api.coin.z.com/public"
	gmoRateLimitCode     = "ERR-5003"
)

type gmoMessage struct {
	Code    string `json:"message_code"`
	Message string `json:"message_string"`
}

type gmoResponse struct {
	Status       int             `json:"status"`
	Data         json.RawMessage `json:"data"`
	Messages     []gmoMessage    `json:"messages"`
	ResponseTime string          `json:"responsetime"`
}

type gmoAsset struct {
	Balance         string `json:"balance"`
	AvailableAmount string `json:"availableAmount"`
}

type gmoTicker struct {
	Symbol    string `json:"symbol"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

type gmoOrder struct {
	OrderID    flexString `json:"orderId"`
	RootID     flexString `json:"rootOrderId"`
	ClientID   string     `json:"clientOrderId"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Size       string     `json:"size"`
	Status     string     `json:"status"`
	Timestamp  string     `json:"timestamp"`
	PositionID flexString `json:"positionId"`
}

type gmoPosition struct {
	PositionID flexString `json:"positionId"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Size       string     `json:"size"`
	Price      string     `json:"price"`
	LossGain   string     `json:"lossGain"`
	Timestamp  string     `json:"timestamp"`
	OpenTime   string     `json:"openTime"`
}

type gmoExecution struct {
	ExecutionID flexString `json:"executionId"`
	OrderID     flexString `json:"orderId"`
	PositionID  flexString `json:"positionId"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"`
	SettleType  string     `json:"settleType"`
	Size        string     `json:"size"`
	Price       string     `json:"price"`
	LossGain    string     `json:"lossGain"`
	Fee         string     `json:"fee"`
	Timestamp   string     `json:"timestamp"`
}

type gmoList[T any] struct {
	List []T `json:"list"`
}

// GMOClient talks to the GMO Coin FX private and public REST APIs.
type GMOClient struct {
	apiKey     string
	apiSecret  string
	privateURL string
	publicURL  string
	http       *resty.Client
	feed       *TickerFeed
	now        func() time.Time
	log        *logger.Entry
}

func gmoRetryCondition(r *resty.Response, err error) bool {
	if isRetryableResp(r, err) {
		return true
	}
	return r != nil && strings.Contains(string(r.Body()), gmoRateLimitCode)
}

func NewGMOClient(cfg Config) *GMOClient {
	privateURL := strings.TrimRight(cfg.GMOPrivateURL, "/")
	if privateURL == "" {
		privateURL = gmoDefaultPrivateURL
	}
	publicURL := strings.TrimRight(cfg.GMOPublicURL, "/")
	if publicURL == "" {
		publicURL = gmoDefaultPublicURL
	}

	rps := cfg.GMORequestsPerSecond
	if rps <= 0 {
		rps = 20
	}

	gate := newRateGate(time.Second/time.Duration(rps), rps)
	return &GMOClient{
		apiKey:     cfg.GMOAPIKey,
		apiSecret:  cfg.GMOAPISecret,
		privateURL: privateURL,
		publicURL:  publicURL,
		http:       newRestyClient("", cfg.HTTPTimeout, cfg.RetryAttempts, gate, gmoRetryCondition),
		now:        time.Now,
		log:        logger.WithField("broker", GMOName),
	}
}

// WithFeed serves tickers from a websocket feed when it holds fresh quotes.
func (c *GMOClient) WithFeed(feed *TickerFeed) *GMOClient {
	c.feed = feed
	return c
}

func (c *GMOClient) Name() string {
	return GMOName
}

// signRequest signs timestamp+method+path+body. The path excludes the query
// string and the /private prefix.
func signRequest(secret, timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *GMOClient) doPrivate(ctx context.Context, op, method, path string, query map[string]string, body interface{}) (*gmoResponse, error) {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
		raw = b
	}

	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req := c.http.R().
		SetContext(ctx).
		SetHeader("API-KEY", c.apiKey).
		SetHeader("API-TIMESTAMP", timestamp).
		SetHeader("API-SIGN", signRequest(c.apiSecret, timestamp, method, path, string(raw)))
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if raw != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(raw)
	}
	return c.execute(ctx, op, req, method, c.privateURL+path)
}

func (c *GMOClient) doPublic(ctx context.Context, op, path string, query map[string]string) (*gmoResponse, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	return c.execute(ctx, op, req, http.MethodGet, c.publicURL+path)
}

func (c *GMOClient) execute(ctx context.Context, op string, req *resty.Request, method, url string) (*gmoResponse, error) {
	resp, err := req.Execute(method, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &BrokerFailure{Broker: GMOName, Op: op, Err: &TransientError{Op: op, Err: err}}
	}
	if isRetryableResp(resp, nil) {
		cause := fmt.Errorf("%s", strings.TrimSpace(string(resp.Body())))
		if resp.StatusCode() == http.StatusTooManyRequests {
			cause = ErrRateLimited
		}
		return nil, &BrokerFailure{Broker: GMOName, Op: op, Err: &TransientError{Op: op, Status: resp.StatusCode(), Err: cause}}
	}

	var out gmoResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &BrokerFailure{Broker: GMOName, Op: op, Message: fmt.Sprintf("HTTP %d", resp.StatusCode()), Err: err}
	}
	if out.Status != 0 {
		failure := &BrokerFailure{Broker: GMOName, Op: op}
		if len(out.Messages) > 0 {
			failure.Code = out.Messages[0].Code
			failure.Message = out.Messages[0].Message
		}
		if failure.Message == "" {
			failure.Message = GetErrorMsg(failure.Code)
		}
		if failure.Code == gmoRateLimitCode {
			failure.Err = &TransientError{Op: op, Err: ErrRateLimited}
		}
		return nil, failure
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &BrokerFailure{Broker: GMOName, Op: op, Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))}
	}
	return &out, nil
}

// GetBalance reads the FX account assets. The API has returned both a list and
// a single object over time.
func (c *GMOClient) GetBalance(ctx context.Context) (model.Balance, error) {
	resp, err := c.doPrivate(ctx, "GetBalance", http.MethodGet, "/v1/account/assets", nil, nil)
	if err != nil {
		return model.Balance{}, err
	}

	var asset gmoAsset
	var list []gmoAsset
	if err := json.Unmarshal(resp.Data, &list); err == nil {
		if len(list) == 0 {
			return model.Balance{}, &BrokerFailure{Broker: GMOName, Op: "GetBalance", Message: "empty asset list"}
		}
		asset = list[0]
	} else if err := json.Unmarshal(resp.Data, &asset); err != nil {
		return model.Balance{}, &BrokerFailure{Broker: GMOName, Op: "GetBalance", Message: "unexpected asset payload", Err: err}
	}

	return model.Balance{
		Available: mapper.DecimalSafe("availableAmount", asset.AvailableAmount),
		Total:     mapper.DecimalSafe("balance", asset.Balance),
		Currency:  "JPY",
	}, nil
}

func (c *GMOClient) GetTickers(ctx context.Context, symbols []string) (map[string]model.Ticker, error) {
	out := make(map[string]model.Ticker, len(symbols))
	missing := symbols
	if c.feed != nil {
		missing = missing[:0:0]
		for _, s := range symbols {
			if t, ok := c.feed.Latest(s); ok {
				out[s] = t
				continue
			}
			missing = append(missing, s)
		}
		if len(missing) == 0 {
			return out, nil
		}
	}

	resp, err := c.doPublic(ctx, "GetTickers", "/v1/ticker", nil)
	if err != nil {
		return nil, err
	}
	var items []gmoTicker
	if err := json.Unmarshal(resp.Data, &items); err != nil {
		return nil, &BrokerFailure{Broker: GMOName, Op: "GetTickers", Message: "unexpected ticker payload", Err: err}
	}

	wanted := make(map[string]bool, len(missing))
	for _, s := range missing {
		wanted[s] = true
	}
	for _, it := range items {
		if len(wanted) > 0 && !wanted[it.Symbol] {
			continue
		}
		out[it.Symbol] = toTicker(it)
	}
	return out, nil
}

func toTicker(it gmoTicker) model.Ticker {
	ts, _ := time.Parse(time.RFC3339Nano, it.Timestamp)
	return model.Ticker{
		Symbol: it.Symbol,
		Bid:    mapper.DecimalSafe("bid", it.Bid),
		Ask:    mapper.DecimalSafe("ask", it.Ask),
		Time:   ts,
	}
}

func (c *GMOClient) CreateOrder(ctx context.Context, req model.OrderRequest) (model.OrderAck, error) {
	body := map[string]interface{}{
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"size":          req.Size.Truncate(0).String(),
		"executionType": "MARKET",
	}
	if req.ClientOrderID != "" {
		body["clientOrderId"] = gmoClientID(req.ClientOrderID)
	}

	resp, err := c.doPrivate(withoutRetry(ctx), "CreateOrder", http.MethodPost, "/v1/order", nil, body)
	if err != nil {
		return model.OrderAck{}, err
	}
	var orders []gmoOrder
	if err := json.Unmarshal(resp.Data, &orders); err != nil || len(orders) == 0 {
		return model.OrderAck{}, &BrokerFailure{Broker: GMOName, Op: "CreateOrder", Message: "order response without order id", Err: err}
	}

	ack := model.OrderAck{
		OrderID:       orders[0].OrderID.String(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Size:          req.Size,
		CreatedAt:     c.now(),
	}
	c.log.WithFields(map[string]interface{}{
		"symbol":   ack.Symbol,
		"side":     ack.Side,
		"size":     ack.Size.String(),
		"order_id": ack.OrderID,
	}).Info("Market order accepted")
	return ack, nil
}

// gmoClientID keeps client order ids within the 36 alphanumeric characters
// the API accepts.
func gmoClientID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}

func (c *GMOClient) executions(ctx context.Context, orderID string) ([]gmoExecution, error) {
	resp, err := c.doPrivate(ctx, "GetExecutions", http.MethodGet, "/v1/executions", map[string]string{"orderId": orderID}, nil)
	if err != nil {
		return nil, err
	}
	var list gmoList[gmoExecution]
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &list); err != nil {
			return nil, &BrokerFailure{Broker: GMOName, Op: "GetExecutions", Message: "unexpected executions payload", Err: err}
		}
	}
	return list.List, nil
}

// executionPrice returns the first execution price of the order, zero when no
// execution is visible yet.
func (c *GMOClient) executionPrice(ctx context.Context, orderID string) (decimal.Decimal, error) {
	execs, err := c.executions(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, e := range execs {
		if e.Price != "" {
			return mapper.DecimalSafe("price", e.Price), nil
		}
	}
	return decimal.Zero, nil
}

func (c *GMOClient) ClosePosition(ctx context.Context, pos model.BrokerPosition) (decimal.Decimal, error) {
	body := map[string]interface{}{
		"symbol":        pos.Symbol,
		"side":          string(pos.Side.Opposite()),
		"executionType": "MARKET",
		"settlePosition": []map[string]string{{
			"positionId": pos.PositionID,
			"size":       pos.Size.Truncate(0).String(),
		}},
	}
	return c.closeWith(ctx, "ClosePosition", "/v1/closeOrder", body)
}

// ClosePositionDirect settles everything open on the symbol and side in one
// bulk order.
func (c *GMOClient) ClosePositionDirect(ctx context.Context, pos model.BrokerPosition) (decimal.Decimal, error) {
	body := map[string]interface{}{
		"symbol":        pos.Symbol,
		"side":          string(pos.Side.Opposite()),
		"executionType": "MARKET",
		"size":          pos.Size.Truncate(0).String(),
	}
	return c.closeWith(ctx, "ClosePositionDirect", "/v1/closeBulkOrder", body)
}

func (c *GMOClient) closeWith(ctx context.Context, op, path string, body map[string]interface{}) (decimal.Decimal, error) {
	resp, err := c.doPrivate(ctx, op, http.MethodPost, path, nil, body)
	if err != nil {
		return decimal.Zero, err
	}
	var orders []gmoOrder
	if err := json.Unmarshal(resp.Data, &orders); err != nil || len(orders) == 0 {
		return decimal.Zero, &BrokerFailure{Broker: GMOName, Op: op, Message: "close response without order id", Err: err}
	}

	price, err := c.executionPrice(ctx, orders[0].OrderID.String())
	if err != nil {
		c.log.WithError(err).WithField("order_id", orders[0].OrderID.String()).Warn("Close accepted but execution price lookup failed")
		return decimal.Zero, nil
	}
	return price, nil
}

func (c *GMOClient) GetPositions(ctx context.Context, symbol string) ([]model.BrokerPosition, error) {
	var query map[string]string
	if symbol != "" {
		query = map[string]string{"symbol": symbol}
	}
	resp, err := c.doPrivate(ctx, "GetPositions", http.MethodGet, "/v1/openPositions", query, nil)
	if err != nil {
		return nil, err
	}

	var list gmoList[gmoPosition]
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &list); err != nil {
			return nil, &BrokerFailure{Broker: GMOName, Op: "GetPositions", Message: "unexpected positions payload", Err: err}
		}
	}

	out := make([]model.BrokerPosition, 0, len(list.List))
	for _, p := range list.List {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		opened, _ := time.Parse(time.RFC3339Nano, firstNonEmpty(p.OpenTime, p.Timestamp))
		out = append(out, model.BrokerPosition{
			PositionID:    p.PositionID.String(),
			Symbol:        p.Symbol,
			Side:          model.Side(strings.ToUpper(p.Side)),
			Size:          mapper.DecimalSafe("size", p.Size),
			Price:         mapper.DecimalSafe("price", p.Price),
			OpenedAt:      opened,
			UnrealizedPnL: mapper.DecimalSafe("lossGain", p.LossGain),
		})
	}
	return out, nil
}

// GetPositionByOrderID follows the order's executions to its position id and
// then to the open position itself.
func (c *GMOClient) GetPositionByOrderID(ctx context.Context, ack model.OrderAck) (model.BrokerPosition, error) {
	if ack.OrderID == "" {
		return model.BrokerPosition{}, &BrokerFailure{Broker: GMOName, Op: "GetPositionByOrderID", Message: "missing order id"}
	}

	execs, err := c.executions(ctx, ack.OrderID)
	if err != nil {
		return model.BrokerPosition{}, err
	}
	var positionID string
	for _, e := range execs {
		if e.PositionID != "" {
			positionID = e.PositionID.String()
			break
		}
	}
	if positionID == "" {
		return model.BrokerPosition{}, ErrPositionNotFound
	}

	positions, err := c.GetPositions(ctx, ack.Symbol)
	if err != nil {
		return model.BrokerPosition{}, err
	}
	for _, p := range positions {
		if p.PositionID == positionID {
			return p, nil
		}
	}
	return model.BrokerPosition{}, ErrPositionNotFound
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
