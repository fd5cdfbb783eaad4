package tradingtime

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Timezone    string        `envconfig:"TRADING_TIMEZONE" default:"Asia/Tokyo"`
	DayBoundary string        `envconfig:"TRADING_DAY_BOUNDARY" default:"06:00"`
	Buffer      time.Duration `envconfig:"SCHEDULE_BUFFER" default:"5s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
