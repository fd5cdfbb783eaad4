package report

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ResultsDir string `envconfig:"RESULTS_DIR" default:"daily_results"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
