package executors

import (
	"context"

	"fxscheduler/src/database"
	"fxscheduler/src/model"
	"fxscheduler/src/repository"
)

type exceptionRepository interface {
	Create(ctx context.Context, exception *model.Exception) error
}

var newExceptionRepo = func() exceptionRepository {
	if !database.Enabled() {
		return nil
	}
	return repository.NewExceptionRepository()
}
