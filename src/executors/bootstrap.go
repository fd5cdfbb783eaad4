package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/connectors"
	"fxscheduler/src/controller"
	"fxscheduler/src/notify"
	"fxscheduler/src/report"
	"fxscheduler/src/schedule"
	"fxscheduler/src/tradingtime"
)

// newBroker is replaced in tests.
var newBroker = connectors.NewBroker

// App is the wired trading service.
type App struct {
	Runner   *Runner
	Feed     *connectors.TickerFeed
	Messages *notify.Recorder
	Calendar *tradingtime.Calendar
	RunID    string
}

// Build reads the environment and wires broker, notifiers, result sinks,
// lifecycle and runner. extra notifiers (the chat bot) receive every message.
func Build(extra ...notify.Notifier) (*App, error) {
	cal, err := tradingtime.NewCalendarFromConfig(tradingtime.GetConfig())
	if err != nil {
		return nil, err
	}
	cfg := GetConfig()

	lcCfg := controller.GetConfig()
	lcCfg, err = controller.LoadSettings(lcCfg, lcCfg.SettingsFile)
	if err != nil {
		return nil, err
	}

	loader := func() (*schedule.Schedule, error) {
		return schedule.LoadFile(cfg.ScheduleCSV, cal)
	}
	var symbols []string
	if sched, err := loader(); err != nil {
		logger.WithError(err).Warn("Schedule unavailable at startup")
	} else {
		symbols = sched.Symbols()
	}

	broker, feed, brokerErr := newBroker(connectors.GetConfig(), symbols)
	if err := lcCfg.ValidateWithBroker(brokerErr); err != nil {
		return nil, err
	}

	notifier, messages := notify.New(notify.GetConfig(), cal.Location, extra...)

	csv, err := report.NewDailyCSV(report.GetConfig().ResultsDir, cal.Location)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	results := controller.NewResultRecorder(runID, broker.Name(), cal, connectors.Rates{Broker: broker}, notifier, csv)
	clock := tradingtime.SystemClock{Location: cal.Location}
	lc := controller.NewLifecycle(lcCfg, broker, cal, clock, notifier, results)

	logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"broker":   broker.Name(),
		"schedule": cfg.ScheduleCSV,
		"timezone": cal.Location.String(),
	}).Info("Service wired")

	return &App{
		Runner:   NewRunner(cfg, lc, results, loader, clock, cal, notifier),
		Feed:     feed,
		Messages: messages,
		Calendar: cal,
		RunID:    runID,
	}, nil
}

// Run starts the price feed, if any, and the runner.
func (a *App) Run(ctx context.Context) error {
	if a.Feed != nil {
		go a.Feed.Run(ctx)
	}
	if err := a.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runner: %w", err)
	}
	return nil
}
