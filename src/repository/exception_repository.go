package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fxscheduler/src/database"
	"fxscheduler/src/model"
)

// ExceptionRepository handles persistence of system exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
		"symbol":  exc.Symbol,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// Recent lists the latest exceptions, optionally filtered by level.
func (r *ExceptionRepository) Recent(ctx context.Context, level string, limit int) ([]model.Exception, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.WithContext(ctx)
	if level != "" {
		q = q.Where("level = ?", level)
	}
	var out []model.Exception
	if err := q.Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "ExceptionRepository",
			"op":    "Recent",
			"level": level,
		}).WithError(err).Error("Failed to fetch exceptions")
		return nil, err
	}
	return out, nil
}
