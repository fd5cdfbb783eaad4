package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/auth"
	"fxscheduler/src/controller"
	"fxscheduler/src/model"
)

type positionSource interface {
	Snapshot() []model.MonitoredPosition
}

type killer interface {
	Kill(ctx context.Context) (controller.CloseSummary, error)
}

type messageSource interface {
	Messages() []string
}

func PositionsHandler(positions positionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := positions.Snapshot()
		if snapshot == nil {
			snapshot = []model.MonitoredPosition{}
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

type killResponse struct {
	Summary controller.CloseSummary `json:"summary"`
	Message string                  `json:"message"`
	Error   string                  `json:"error,omitempty"`
}

// KillHandler closes every open position. The loop keeps running.
func KillHandler(k killer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		operator := "unknown"
		if op, ok := auth.GetOperatorFromContext(r.Context()); ok && op != nil {
			operator = op.Name
		}
		logger.WithField("operator", operator).Warn("kill requested over HTTP")

		summary, err := k.Kill(r.Context())
		resp := killResponse{Summary: summary, Message: summary.String()}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)
	}
}

func NotificationsHandler(messages messageSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := messages.Messages()
		if list == nil {
			list = []string{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
