package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/database"
	"fxscheduler/src/executors"
	"fxscheduler/src/handler"
	"fxscheduler/src/notify"
	"fxscheduler/src/repository"
	"fxscheduler/src/security"
)

// Deps are the live objects the operator API reads from.
type Deps struct {
	Runner   *executors.Runner
	Messages *notify.Recorder
	Security security.Config
}

func NewRouter(deps Deps) http.Handler {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	lc := deps.Runner.Lifecycle()
	today := func() string { return deps.Runner.Status().TradingDate }

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(security.RequireAdmin(deps.Security))
		r.Get("/status", handler.StatusHandler(deps.Runner, lc.Broker()))
		r.Get("/positions", handler.PositionsHandler(lc.Positions()))
		r.Get("/results", defaultResultsHandler(deps.Runner, today))
		r.Get("/notifications", handler.NotificationsHandler(deps.Messages))
		r.Post("/kill", handler.KillHandler(deps.Runner))
	})
	return r
}

// defaultResultsHandler reads from the database when it is enabled and from
// the in-memory results otherwise.
func defaultResultsHandler(runner *executors.Runner, today func() string) http.HandlerFunc {
	if database.Enabled() {
		return handler.ResultsHandler(repository.NewTradeResultRepository(), runner.Results(), today)
	}
	return handler.ResultsHandler(nil, runner.Results(), today)
}

// StartServer serves the operator API until ctx is done.
func StartServer(ctx context.Context, cfg *Config, deps Deps) error {
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
