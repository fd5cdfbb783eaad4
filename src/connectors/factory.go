package connectors

import (
	"strings"
)

// NewBroker builds the configured broker client. The returned feed is non-nil
// when the GMO websocket feed is enabled; the caller runs it.
func NewBroker(cfg Config, symbols []string) (Broker, *TickerFeed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(cfg.Broker) {
	case OANDAName:
		return NewOANDAClient(cfg), nil, nil
	default:
		client := NewGMOClient(cfg)
		if !cfg.GMOStreamEnabled || len(symbols) == 0 {
			return client, nil, nil
		}
		feed := NewTickerFeed(cfg.GMOStreamURL, symbols, 0)
		return client.WithFeed(feed), feed, nil
	}
}
