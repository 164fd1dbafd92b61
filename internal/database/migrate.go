package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"GigSafe/internal/models"
)

// Partial unique indexes back the single-worker-per-gig rule and the single
// active fee configuration at the database level.
var indexStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_applications_gig_holder
		ON applications (gig_id)
		WHERE status IN ('accepted', 'funded', 'completed') AND deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_applications_gig_applicant
		ON applications (gig_id, applicant_id)
		WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_fee_configurations_active
		ON fee_configurations (is_active)
		WHERE is_active`,
}

func Migrate(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	log.Info("running database migrations")

	err := db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Gig{},
		&models.Application{},
		&models.Payment{},
		&models.PaymentHistory{},
		&models.FeeConfiguration{},
		&models.PlatformSetting{},
		&models.Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	for _, stmt := range indexStatements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	log.Info("database migration completed")
	return nil
}
