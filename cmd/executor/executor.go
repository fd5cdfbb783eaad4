package executor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/nightlyone/lockfile"
	"github.com/sirupsen/logrus"

	"fxscheduler/src/database"
	"fxscheduler/src/executors"
	"fxscheduler/src/notify"
	"fxscheduler/src/security"
	"fxscheduler/src/server"
	"fxscheduler/src/telegram"
)

type Executor struct{}

// Lock takes the single instance lock. The caller releases it.
func Lock(path string) (lockfile.Lockfile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	flock, err := lockfile.New(abs)
	if err != nil {
		return "", fmt.Errorf("could not create lock file %q: %w", abs, err)
	}
	if err := flock.TryLock(); err != nil {
		return "", fmt.Errorf("is another instance already running? could not lock %q: %w", abs, err)
	}
	return flock, nil
}

func (t *Executor) Start() error {
	config := GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	flock, err := Lock(config.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := flock.Unlock(); err != nil {
			logrus.WithError(err).Warn("Failed to release lock file")
		}
	}()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	var extra []notify.Notifier
	var bot *telegram.Bot
	if tgCfg := telegram.GetConfig(); tgCfg.Enabled() {
		bot, err = telegram.New(tgCfg)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		extra = append(extra, bot)
	}

	app, err := executors.Build(extra...)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if bot != nil {
		bot.Attach(telegram.NewDispatcher(app.Runner, app.Runner.Results()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Start(ctx)
		}()
	}
	if config.ServerEnabled {
		deps := server.Deps{Runner: app.Runner, Messages: app.Messages, Security: security.GetConfig()}
		srvCfg := server.GetConfig()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.StartServer(ctx, srvCfg, deps); err != nil {
				logrus.WithError(err).Error("Operator API stopped")
			}
		}()
	}

	logrus.WithField("run_id", app.RunID).Info("Starting FX scheduler")
	runErr := app.Run(ctx)

	// An operator stop ends only the runner; take the API and the bot down too.
	stop()
	wg.Wait()
	return runErr
}
