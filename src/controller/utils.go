package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/model"
)

// Service is the service name recorded on captured exceptions.
const Service = "fxscheduler"

const (
	LevelWarn     = "warn"
	LevelError    = "error"
	LevelCritical = "critical"
)

// Capture records a system exception, logs it locally, and optionally
// persists it in the database. The symbol and trade_number context keys are
// copied onto their own columns.
func Capture(
	ctx context.Context,
	repo exceptionRepository,
	service string,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   service,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}
	if s, ok := contextData["symbol"].(string); ok {
		exc.Symbol = s
	}
	if s, ok := contextData["trade_number"].(string); ok {
		exc.TradeNumber = s
	}

	logger.WithFields(map[string]interface{}{
		"service": service,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	if repo != nil {
		if e := repo.Create(ctx, exc); e != nil {
			logger.WithError(e).Error("Failed to persist exception")
		}
	}
}
