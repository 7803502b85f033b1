package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/sugan0927/easyinstall-worker/internal/model"
)

const defaultHistoryLimit = 50

// History records one row per backup attempt. Rows are append-only.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

func (s *History) Append(entry *model.BackupHistory) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("record backup history: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *History) Recent(limit int) ([]model.BackupHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var entries []model.BackupHistory
	err := s.db.Order("start_time DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list backup history: %w", err)
	}
	return entries, nil
}

func (s *History) Count() (int64, error) {
	var n int64
	if err := s.db.Model(&model.BackupHistory{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count backup history: %w", err)
	}
	return n, nil
}
