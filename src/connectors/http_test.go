package connectors

// Test index:
//  1. TestGMOCreateOrderIsSentOnce keeps a timed-out market order from being resent.
//  2. TestGMOReadsAreStillRetried retries an idempotent read after a 503.
//  3. TestOANDACreateOrderIsSentOnce does the same for OANDA order placement.
//  4. TestRateGateCountsRetries makes every retry wait on the rate gate.

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fxscheduler/src/model"
)

func TestGMOCreateOrderIsSentOnce(t *testing.T) {
	var orders int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/private/v1/order" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&orders, 1) == 1 {
			select {
			case <-time.After(400 * time.Millisecond):
			case <-r.Context().Done():
			}
		}
		gmoOK(w, []map[string]interface{}{{"orderId": 1002}})
	}))

	client := NewGMOClient(Config{
		GMOAPIKey:            "key",
		GMOAPISecret:         "secret",
		GMOPrivateURL:        server.URL + "/private",
		GMOPublicURL:         server.URL + "/public",
		GMORequestsPerSecond: 100,
		HTTPTimeout:          150 * time.Millisecond,
		RetryAttempts:        4,
	})
	_, err := client.CreateOrder(context.Background(), model.OrderRequest{Symbol: "USD_JPY", Side: model.SideBuy, Size: d("10000")})
	server.Close()

	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&orders))
}

func TestGMOReadsAreStillRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gmoOK(w, map[string]interface{}{"equity": "1000", "availableAmount": "900"})
	}))
	defer server.Close()

	client := NewGMOClient(Config{
		GMOAPIKey:     "key",
		GMOAPISecret:  "secret",
		GMOPrivateURL: server.URL + "/private",
		GMOPublicURL:  server.URL + "/public",
		HTTPTimeout:   time.Second,
		RetryAttempts: 2,
	})
	_, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOANDACreateOrderIsSentOnce(t *testing.T) {
	var orders int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&orders, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOANDAClient(Config{
		OANDAAccountID:   "001-001-1-001",
		OANDAAccessToken: "token",
		OANDABaseURL:     server.URL,
		HTTPTimeout:      time.Second,
		RetryAttempts:    4,
	})
	_, err := client.CreateOrder(context.Background(), model.OrderRequest{Symbol: "EUR_USD", Side: model.SideSell, Size: d("1000")})

	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&orders))
}

func TestRateGateCountsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	// two tokens, then nothing for an hour
	gate := newRateGate(time.Hour, 2)
	client := newRestyClient(server.URL, time.Second, 4, gate, isRetryableResp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.R().SetContext(ctx).Get("/")

	require.Error(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
