package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EnableDB bool `envconfig:"ENABLE_DB" default:"true"`
	// Driver is "postgres" or "sqlite".
	Driver          string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseURLMain string `envconfig:"DATABASE_URL_MAIN" default:"fxscheduler.db"`
	GormLogLevel    int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
	MaxOpenConns    int    `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"10"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
