package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sugan0927/easyinstall-worker/internal/model"
)

// ErrJobNotFound is returned for lookups of unknown job ids.
var ErrJobNotFound = errors.New("backup job not found")

// Jobs is the registry of named backup job definitions. Jobs are soft-deleted
// via the status column; no hard delete exists.
type Jobs struct {
	db *gorm.DB
}

func NewJobs(db *gorm.DB) *Jobs {
	return &Jobs{db: db}
}

func (s *Jobs) Create(job *model.BackupJob) error {
	if job.Status == "" {
		job.Status = "active"
	}
	if job.RetentionDays == 0 {
		job.RetentionDays = 30
	}
	if err := s.db.Create(job).Error; err != nil {
		return fmt.Errorf("create backup job: %w", err)
	}
	return nil
}

func (s *Jobs) Get(id uint) (*model.BackupJob, error) {
	var job model.BackupJob
	err := s.db.First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load backup job: %w", err)
	}
	return &job, nil
}

func (s *Jobs) ListByUser(userID uint) ([]model.BackupJob, error) {
	var jobs []model.BackupJob
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list backup jobs: %w", err)
	}
	return jobs, nil
}

// SetStatus toggles a job's status (e.g. "active" / "disabled" / "deleted").
func (s *Jobs) SetStatus(id uint, status string) error {
	res := s.db.Model(&model.BackupJob{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update job status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkRun stamps the job's last_run after a backup attempt.
func (s *Jobs) MarkRun(id uint, at time.Time) error {
	return s.db.Model(&model.BackupJob{}).Where("id = ?", id).Update("last_run", at).Error
}
