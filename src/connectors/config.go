package connectors

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Broker string `envconfig:"BROKER" default:"gmo"`

	GMOAPIKey            string `envconfig:"GMO_API_KEY"`
	GMOAPISecret         string `envconfig:"GMO_API_SECRET"`
	GMOPrivateURL        string `envconfig:"GMO_PRIVATE_URL" default:"https://forex-api.coin.z.com/private"`
	GMOPublicURL         string `envconfig:"GMO_PUBLIC_URL" default:"https://forex-api.coin.z.com/public"`
	GMOStreamURL         string `envconfig:"GMO_STREAM_URL" default:"wss://forex-api.coin.z.com/ws/public/v1"`
	GMOStreamEnabled     bool   `envconfig:"GMO_STREAM_ENABLED" default:"false"`
	GMORequestsPerSecond int    `envconfig:"GMO_REQUESTS_PER_SECOND" default:"20"`

	OANDAAccountID   string `envconfig:"OANDA_ACCOUNT_ID"`
	OANDAAccessToken string `envconfig:"OANDA_ACCESS_TOKEN"`
	OANDAEnvironment string `envconfig:"OANDA_ENVIRONMENT" default:"practice"`
	OANDABaseURL     string `envconfig:"OANDA_BASE_URL"`

	HTTPTimeout   time.Duration `envconfig:"BROKER_HTTP_TIMEOUT" default:"15s"`
	RetryAttempts int           `envconfig:"BROKER_RETRY_ATTEMPTS" default:"4"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Validate checks that the selected broker has credentials.
func (c Config) Validate() error {
	switch strings.ToLower(c.Broker) {
	case GMOName:
		if c.GMOAPIKey == "" || c.GMOAPISecret == "" {
			return fmt.Errorf("GMO_API_KEY and GMO_API_SECRET are required for broker %q", c.Broker)
		}
	case OANDAName:
		if c.OANDAAccountID == "" || c.OANDAAccessToken == "" {
			return fmt.Errorf("OANDA_ACCOUNT_ID and OANDA_ACCESS_TOKEN are required for broker %q", c.Broker)
		}
	default:
		return fmt.Errorf("unknown broker %q", c.Broker)
	}
	return nil
}
