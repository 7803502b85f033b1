package store

import (
	"gorm.io/gorm"

	"github.com/sugan0927/easyinstall-worker/internal/model"
)

// AutoMigrate creates or updates the bookkeeping tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.CloudCredential{},
		&model.BackupJob{},
		&model.BackupHistory{},
	)
}
