package executor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// LockFile keeps a second instance from trading the same account.
	LockFile  string `envconfig:"LOCK_FILE" default:"fxscheduler.lock"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	// ServerEnabled serves the operator API on PORT.
	ServerEnabled bool `envconfig:"SERVER_ENABLED" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
