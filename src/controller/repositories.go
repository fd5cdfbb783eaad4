package controller

import (
	"context"

	"fxscheduler/src/database"
	"fxscheduler/src/model"
	"fxscheduler/src/repository"
)

type exceptionRepository interface {
	Create(ctx context.Context, exception *model.Exception) error
}

type tradeResultRepository interface {
	Create(ctx context.Context, result *model.TradeResult) error
}

// Constructors return nil when persistence is disabled.
var (
	newExceptionRepo = func() exceptionRepository {
		if !database.Enabled() {
			return nil
		}
		return repository.NewExceptionRepository()
	}
	newTradeResultRepo = func() tradeResultRepository {
		if !database.Enabled() {
			return nil
		}
		return repository.NewTradeResultRepository()
	}
)
