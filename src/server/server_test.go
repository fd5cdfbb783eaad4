package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fxscheduler/src/connectors"
	"fxscheduler/src/controller"
	"fxscheduler/src/executors"
	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/schedule"
	"fxscheduler/src/security"
	"fxscheduler/src/tradingtime"
)

type idleBroker struct{}

func (idleBroker) Name() string { return "idle" }

func (idleBroker) GetBalance(context.Context) (model.Balance, error) {
	return model.Balance{Available: decimal.NewFromInt(100000), Total: decimal.NewFromInt(100000), Currency: "JPY"}, nil
}

func (idleBroker) GetTickers(context.Context, []string) (map[string]model.Ticker, error) {
	return map[string]model.Ticker{}, nil
}

func (idleBroker) CreateOrder(context.Context, model.OrderRequest) (model.OrderAck, error) {
	return model.OrderAck{}, nil
}

func (idleBroker) ClosePosition(context.Context, model.BrokerPosition) (decimal.Decimal, error) {
	return decimal.Zero, connectors.ErrPositionNotFound
}

func (idleBroker) ClosePositionDirect(context.Context, model.BrokerPosition) (decimal.Decimal, error) {
	return decimal.Zero, connectors.ErrPositionNotFound
}

func (idleBroker) GetPositions(context.Context, string) ([]model.BrokerPosition, error) {
	return nil, nil
}

func (idleBroker) GetPositionByOrderID(context.Context, model.OrderAck) (model.BrokerPosition, error) {
	return model.BrokerPosition{}, connectors.ErrPositionNotFound
}

func newTestServer(t *testing.T) (*httptest.Server, *notify.Recorder) {
	t.Helper()
	cal := tradingtime.NewCalendar(time.UTC, tradingtime.DefaultBoundary, tradingtime.DefaultBuffer)
	clock := tradingtime.NewManualClock(time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC))
	messages := notify.NewRecorder(10)
	broker := idleBroker{}

	results := controller.NewResultRecorder("run", broker.Name(), cal, connectors.Rates{Broker: broker}, messages)
	lc := controller.NewLifecycle(controller.Config{PositionCheckInterval: time.Hour, MonitorInterval: time.Second}, broker, cal, clock, messages, results)
	runner := executors.NewRunner(executors.Config{}, lc, results, func() (*schedule.Schedule, error) {
		return schedule.New(cal, nil), nil
	}, clock, cal, messages)
	require.NoError(t, runner.Load(context.Background()))

	hash, err := security.HashToken("s3cret")
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		Runner:   runner,
		Messages: messages,
		Security: security.Config{AdminTokenHash: hash, AdminName: "ops"},
	}))
	t.Cleanup(srv.Close)
	return srv, messages
}

func TestHealthcheckIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := resty.New().SetBaseURL(srv.URL).R().Get("/healthcheck")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Equal(t, "OK", resp.String())
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, messages := newTestServer(t)
	messages.Notify(context.Background(), "[START] test")

	client := resty.New().SetBaseURL(srv.URL)
	resp, err := client.R().Get("/notifications")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	client.SetAuthToken("s3cret")

	var list []string
	resp, err = client.R().SetResult(&list).Get("/notifications")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Equal(t, []string{"[START] test"}, list)

	var status struct {
		Operator string `json:"operator"`
		Broker   string `json:"broker"`
		Runner   struct {
			TradingDate string `json:"trading_date"`
		} `json:"runner"`
	}
	resp, err = client.R().SetResult(&status).Get("/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Equal(t, "ops", status.Operator)
	require.Equal(t, "idle", status.Broker)
	require.Equal(t, "2024-03-12", status.Runner.TradingDate)

	resp, err = client.R().Get("/results")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	resp, err = client.R().Get("/positions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.JSONEq(t, "[]", resp.String())

	resp, err = client.R().Post("/kill")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
}
