package migrations

import (
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration tracks executed data migrations.
// Table name is fixed to avoid collisions with other models.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// RunOnce runs fn only if migrationID was not executed before.
// It records the migration as executed only after fn succeeds.
// The data_migrations table must already exist.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	if migrationID == "" {
		return fmt.Errorf("migration id is empty")
	}
	if fn == nil {
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var m DataMigration
		err := tx.First(&m, "id = ?", migrationID).Error
		if err == nil {
			// already applied
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}

		rec := DataMigration{
			ID:        migrationID,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}

		logger.WithField("migration", migrationID).Info("Data migration applied")
		return nil
	})
}

// Run executes all data migrations that go beyond schema auto-migrations.
// Append new migrations at the bottom with a stable unique id.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	if err := RunOnce(db, "00001_uppercase_trade_result_sides", uppercaseSides); err != nil {
		return err
	}

	if err := RunOnce(db, "00002_backfill_close_reason", backfillCloseReason); err != nil {
		return err
	}

	return nil
}

// uppercaseSides rewrites rows imported from older CSV exports that stored
// the side in lower case.
func uppercaseSides(db *gorm.DB) error {
	return db.Exec(`UPDATE trade_results SET side = UPPER(side) WHERE side IN ('buy', 'sell')`).Error
}

// backfillCloseReason marks rows without a reason as scheduled exits, the
// only reason older exports knew about.
func backfillCloseReason(db *gorm.DB) error {
	return db.Exec(`UPDATE trade_results SET close_reason = 'scheduled' WHERE close_reason IS NULL OR close_reason = ''`).Error
}
