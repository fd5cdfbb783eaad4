package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// AdminTokenHash is the bcrypt hash of the admin API token. The protected
	// routes answer 403 while it is empty.
	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH"`
	AdminName      string `envconfig:"ADMIN_NAME" default:"operator"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
