package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fxscheduler/src/database"
	"fxscheduler/src/model"
)

// TradeResultRepository stores closed trades. Rows are never updated.
type TradeResultRepository struct {
	db *gorm.DB
}

// NewTradeResultRepository creates a repository on the main database.
func NewTradeResultRepository() *TradeResultRepository {
	logger.WithField("component", "TradeResultRepository").
		Debug("Creating new TradeResultRepository with MainDB")

	return &TradeResultRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeResultRepository) WithDB(db *gorm.DB) *TradeResultRepository {
	return &TradeResultRepository{db: db}
}

// Create appends a result. The ID and CreatedAt fields are filled in.
func (r *TradeResultRepository) Create(ctx context.Context, result *model.TradeResult) error {
	logger.WithFields(map[string]interface{}{
		"repo":         "TradeResultRepository",
		"op":           "Create",
		"symbol":       result.Symbol,
		"side":         result.Side,
		"trade_number": result.TradeNumber,
		"reason":       result.CloseReason,
	}).Debug("Creating trade result")

	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeResultRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create trade result")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "TradeResultRepository",
		"op":   "Create",
		"id":   result.ID,
	}).Info("Trade result stored")
	return nil
}

// FindByTradingDate returns the results of one trading day (YYYY-MM-DD) in
// exit order.
func (r *TradeResultRepository) FindByTradingDate(ctx context.Context, date string) ([]model.TradeResult, error) {
	var results []model.TradeResult
	err := r.db.WithContext(ctx).
		Where("trading_date = ?", date).
		Order("exit_time ASC, id ASC").
		Find(&results).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeResultRepository",
			"op":   "FindByTradingDate",
			"date": date,
		}).WithError(err).Error("Failed to fetch trade results")
		return nil, err
	}
	return results, nil
}

// FindBetween returns results whose exit time is in [from, to).
func (r *TradeResultRepository) FindBetween(ctx context.Context, from, to time.Time) ([]model.TradeResult, error) {
	var results []model.TradeResult
	err := r.db.WithContext(ctx).
		Where("exit_time >= ? AND exit_time < ?", from, to).
		Order("exit_time ASC, id ASC").
		Find(&results).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeResultRepository",
			"op":   "FindBetween",
			"from": from,
			"to":   to,
		}).WithError(err).Error("Failed to fetch trade results")
		return nil, err
	}
	return results, nil
}

// Recent returns the latest results, newest first.
func (r *TradeResultRepository) Recent(ctx context.Context, limit int) ([]model.TradeResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var results []model.TradeResult
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TradeResultRepository",
			"op":    "Recent",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch recent trade results")
		return nil, err
	}
	return results, nil
}
