package telegram

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	// Owner is the Telegram username allowed to send commands.
	Owner string `envconfig:"TELEGRAM_OWNER"`
	// ChatID receives notifications before the owner has written to the bot.
	ChatID int64 `envconfig:"TELEGRAM_CHAT_ID"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) Enabled() bool {
	return c.BotToken != ""
}

func (c Config) Validate() error {
	if c.BotToken != "" && c.Owner == "" {
		return fmt.Errorf("TELEGRAM_OWNER is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}
