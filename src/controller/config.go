package controller

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fxscheduler/src/tp_sl"
)

// Config holds the trading parameters. Values come from the environment and
// may be overridden by the YAML settings file.
type Config struct {
	SpreadThreshold decimal.Decimal `envconfig:"SPREAD_THRESHOLD" default:"0.01"`
	JitterSeconds   int             `envconfig:"JITTER_SECONDS" default:"3"`

	EntryRetryInterval time.Duration `envconfig:"ENTRY_ORDER_RETRY_INTERVAL" default:"3s"`
	MaxEntryAttempts   int           `envconfig:"MAX_ENTRY_ORDER_ATTEMPTS" default:"3"`
	ExitRetryInterval  time.Duration `envconfig:"EXIT_ORDER_RETRY_INTERVAL" default:"3s"`
	MaxExitAttempts    int           `envconfig:"MAX_EXIT_ORDER_ATTEMPTS" default:"3"`

	StopLossPips   decimal.Decimal `envconfig:"STOP_LOSS_PIPS" default:"0"`
	TakeProfitPips decimal.Decimal `envconfig:"TAKE_PROFIT_PIPS" default:"0"`

	MonitorInterval       time.Duration `envconfig:"MONITOR_INTERVAL" default:"5s"`
	PositionCheckInterval time.Duration `envconfig:"POSITION_CHECK_INTERVAL" default:"10m"`

	Leverage         int             `envconfig:"LEVERAGE" default:"25"`
	RiskRatio        decimal.Decimal `envconfig:"RISK_RATIO" default:"1.0"`
	AutoLot          bool            `envconfig:"AUTOLOT" default:"true"`
	FixedLotLeverage int             `envconfig:"FIXED_LOT_LEVERAGE" default:"18"`
	DailyVolumeLimit decimal.Decimal `envconfig:"DAILY_VOLUME_LIMIT" default:"15000000"`

	AllowDuplicateEntry bool `envconfig:"ALLOW_DUPLICATE_ENTRY" default:"false"`

	PositionLookupAttempts int           `envconfig:"POSITION_LOOKUP_ATTEMPTS" default:"5"`
	PositionLookupDelay    time.Duration `envconfig:"POSITION_LOOKUP_DELAY" default:"2s"`
	ReconcileInterval      time.Duration `envconfig:"RECONCILE_INTERVAL" default:"30s"`
	ReconcileGrace         time.Duration `envconfig:"RECONCILE_GRACE" default:"10m"`

	SettingsFile string `envconfig:"SETTINGS_FILE"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Settings mirrors the overridable part of Config in the YAML settings file.
// Absent keys keep the environment value.
type Settings struct {
	SpreadThreshold    *float64       `yaml:"spread_threshold"`
	JitterSeconds      *int           `yaml:"jitter_seconds"`
	EntryRetryInterval *time.Duration `yaml:"entry_order_retry_interval"`
	MaxEntryAttempts   *int           `yaml:"max_entry_order_attempts"`
	ExitRetryInterval  *time.Duration `yaml:"exit_order_retry_interval"`
	MaxExitAttempts    *int           `yaml:"max_exit_order_attempts"`
	StopLossPips       *float64       `yaml:"stop_loss_pips"`
	TakeProfitPips     *float64       `yaml:"take_profit_pips"`
	MonitorInterval    *time.Duration `yaml:"monitor_interval"`
	Leverage           *int           `yaml:"leverage"`
	RiskRatio          *float64       `yaml:"risk_ratio"`
	AutoLot            *bool          `yaml:"autolot"`
	FixedLotLeverage   *int           `yaml:"fixed_lot_leverage"`
}

// LoadSettings overlays the YAML file at path onto cfg.
func LoadSettings(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read settings %q: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return cfg, fmt.Errorf("parse settings %q: %w", path, err)
	}
	return s.Apply(cfg), nil
}

func (s Settings) Apply(cfg Config) Config {
	if s.SpreadThreshold != nil {
		cfg.SpreadThreshold = decimal.NewFromFloat(*s.SpreadThreshold)
	}
	if s.JitterSeconds != nil {
		cfg.JitterSeconds = *s.JitterSeconds
	}
	if s.EntryRetryInterval != nil {
		cfg.EntryRetryInterval = *s.EntryRetryInterval
	}
	if s.MaxEntryAttempts != nil {
		cfg.MaxEntryAttempts = *s.MaxEntryAttempts
	}
	if s.ExitRetryInterval != nil {
		cfg.ExitRetryInterval = *s.ExitRetryInterval
	}
	if s.MaxExitAttempts != nil {
		cfg.MaxExitAttempts = *s.MaxExitAttempts
	}
	if s.StopLossPips != nil {
		cfg.StopLossPips = decimal.NewFromFloat(*s.StopLossPips)
	}
	if s.TakeProfitPips != nil {
		cfg.TakeProfitPips = decimal.NewFromFloat(*s.TakeProfitPips)
	}
	if s.MonitorInterval != nil {
		cfg.MonitorInterval = *s.MonitorInterval
	}
	if s.Leverage != nil {
		cfg.Leverage = *s.Leverage
	}
	if s.RiskRatio != nil {
		cfg.RiskRatio = decimal.NewFromFloat(*s.RiskRatio)
	}
	if s.AutoLot != nil {
		cfg.AutoLot = *s.AutoLot
	}
	if s.FixedLotLeverage != nil {
		cfg.FixedLotLeverage = *s.FixedLotLeverage
	}
	return cfg
}

// ConfigError lists every invalid parameter found by Validate.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate enforces the accepted parameter ranges.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	decBetween := func(v decimal.Decimal, lo, hi string) bool {
		return v.GreaterThanOrEqual(decimal.RequireFromString(lo)) && v.LessThanOrEqual(decimal.RequireFromString(hi))
	}
	durBetween := func(d time.Duration) bool {
		return d >= time.Second && d <= time.Minute
	}

	check(decBetween(c.SpreadThreshold, "0.001", "1"), "SPREAD_THRESHOLD %s not in [0.001, 1]", c.SpreadThreshold)
	check(c.JitterSeconds >= 0 && c.JitterSeconds <= 60, "JITTER_SECONDS %d not in [0, 60]", c.JitterSeconds)
	check(durBetween(c.EntryRetryInterval), "ENTRY_ORDER_RETRY_INTERVAL %s not in [1s, 60s]", c.EntryRetryInterval)
	check(durBetween(c.ExitRetryInterval), "EXIT_ORDER_RETRY_INTERVAL %s not in [1s, 60s]", c.ExitRetryInterval)
	check(c.MaxEntryAttempts >= 1 && c.MaxEntryAttempts <= 10, "MAX_ENTRY_ORDER_ATTEMPTS %d not in [1, 10]", c.MaxEntryAttempts)
	check(c.MaxExitAttempts >= 1 && c.MaxExitAttempts <= 10, "MAX_EXIT_ORDER_ATTEMPTS %d not in [1, 10]", c.MaxExitAttempts)
	check(decBetween(c.StopLossPips, "0", "1000"), "STOP_LOSS_PIPS %s not in [0, 1000]", c.StopLossPips)
	check(decBetween(c.TakeProfitPips, "0", "1000"), "TAKE_PROFIT_PIPS %s not in [0, 1000]", c.TakeProfitPips)
	check(c.Leverage >= 1 && c.Leverage <= 100, "LEVERAGE %d not in [1, 100]", c.Leverage)
	check(c.FixedLotLeverage >= 1 && c.FixedLotLeverage <= 100, "FIXED_LOT_LEVERAGE %d not in [1, 100]", c.FixedLotLeverage)
	check(decBetween(c.RiskRatio, "0.1", "1.0"), "RISK_RATIO %s not in [0.1, 1.0]", c.RiskRatio)
	check(c.MonitorInterval > 0, "MONITOR_INTERVAL must be positive")
	check(c.PositionCheckInterval > 0, "POSITION_CHECK_INTERVAL must be positive")
	check(c.PositionLookupAttempts >= 1, "POSITION_LOOKUP_ATTEMPTS must be at least 1")

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// ValidateWithBroker runs Validate and folds a broker credential problem into
// the same ConfigError.
func (c Config) ValidateWithBroker(brokerErr error) error {
	err := c.Validate()
	if brokerErr == nil {
		return err
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		ce.Problems = append(ce.Problems, brokerErr.Error())
		return ce
	}
	return &ConfigError{Problems: []string{brokerErr.Error()}}
}

func (c Config) Thresholds() tp_sl.Thresholds {
	return tp_sl.Thresholds{StopLossPips: c.StopLossPips, TakeProfitPips: c.TakeProfitPips}
}

func (c Config) Jitter() time.Duration {
	return time.Duration(c.JitterSeconds) * time.Second
}

// OrderLeverage is the leverage used for sizing and sent with orders.
func (c Config) OrderLeverage() int {
	if c.AutoLot {
		return c.Leverage
	}
	return c.FixedLotLeverage
}
