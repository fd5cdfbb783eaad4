package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod   time.Duration `envconfig:"LOOP_PERIOD" default:"1s"`
	ErrorBackoff time.Duration `envconfig:"ERROR_BACKOFF" default:"5s"`
	ScheduleCSV  string        `envconfig:"SCHEDULE_CSV" default:"schedule.csv"`
	// SkipThinLiquidity skips entries on weekends, US holidays and the New
	// York rollover hours.
	SkipThinLiquidity bool `envconfig:"SKIP_THIN_LIQUIDITY" default:"false"`
	// GuardRetention is how long once-per-day markers are kept.
	GuardRetention time.Duration `envconfig:"GUARD_RETENTION" default:"48h"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
