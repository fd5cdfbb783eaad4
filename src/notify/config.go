package notify

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	Prefix            string `envconfig:"NOTIFY_PREFIX" default:"[fxscheduler]"`
	RecentMessages    int    `envconfig:"NOTIFY_RECENT_MESSAGES" default:"50"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// New builds the configured sinks plus the in-memory recorder. Extra sinks
// such as the chat bot are appended by the caller.
func New(cfg Config, loc *time.Location, extra ...Notifier) (Multi, *Recorder) {
	rec := NewRecorder(cfg.RecentMessages)
	sinks := Multi{rec}
	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, NewDiscord(cfg.DiscordWebhookURL, cfg.Prefix, loc))
	}
	sinks = append(sinks, extra...)
	return sinks, rec
}
