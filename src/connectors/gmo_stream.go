package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/model"
)

const gmoDefaultStreamURL = "wss://forex-api.coin.z.com/ws/public/v1"

type gmoSubscribe struct {
	Command string `json:"command"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// TickerFeed keeps the latest quote per symbol from the GMO public websocket.
// Quotes older than maxAge are treated as missing so callers fall back to REST.
type TickerFeed struct {
	url     string
	symbols []string
	maxAge  time.Duration
	dialer  websocket.Dialer
	now     func() time.Time
	log     *logger.Entry

	mu       sync.RWMutex
	quotes   map[string]model.Ticker
	received map[string]time.Time
}

func NewTickerFeed(url string, symbols []string, maxAge time.Duration) *TickerFeed {
	if url == "" {
		url = gmoDefaultStreamURL
	}
	if maxAge <= 0 {
		maxAge = 3 * time.Second
	}
	return &TickerFeed{
		url:     url,
		symbols: append([]string(nil), symbols...),
		maxAge:  maxAge,
		dialer: websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		now:      time.Now,
		log:      logger.WithFields(map[string]interface{}{"broker": GMOName, "component": "ticker_feed"}),
		quotes:   map[string]model.Ticker{},
		received: map[string]time.Time{},
	}
}

// Latest returns the cached quote for symbol if it is fresh.
func (f *TickerFeed) Latest(symbol string) (model.Ticker, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.quotes[symbol]
	if !ok || f.now().Sub(f.received[symbol]) > f.maxAge {
		return model.Ticker{}, false
	}
	return t, true
}

func (f *TickerFeed) store(t model.Ticker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[t.Symbol] = t
	f.received[t.Symbol] = f.now()
}

// Run keeps the feed connected until ctx is cancelled, reconnecting with a
// capped backoff.
func (f *TickerFeed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return
		}
		f.log.WithError(err).WithField("retry_in", backoff.String()).Warn("Ticker feed disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (f *TickerFeed) session(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	// The public API accepts one subscription per second.
	for i, symbol := range f.symbols {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
		if err := conn.WriteJSON(gmoSubscribe{Command: "subscribe", Channel: "ticker", Symbol: symbol}); err != nil {
			return fmt.Errorf("ws subscribe %s: %w", symbol, err)
		}
	}
	f.log.WithField("symbols", f.symbols).Info("Ticker feed subscribed")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}
		var it gmoTicker
		if err := json.Unmarshal(msg, &it); err != nil || it.Symbol == "" {
			f.log.WithField("raw", string(msg)).Debug("Ignoring non-ticker frame")
			continue
		}
		f.store(toTicker(it))
	}
}
