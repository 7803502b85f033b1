package model

import (
	"encoding/json"
	"time"
)

// CloudCredential stores one opaque credential blob per (user, provider).
// The blob is only interpreted by the matching upload adapter.
type CloudCredential struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"uniqueIndex:uniq_user_provider"`
	Provider    string `gorm:"size:32;uniqueIndex:uniq_user_provider"`
	Credentials string `gorm:"type:text;not null"`
	Name        string `gorm:"size:255"`
	IsDefault   bool
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (CloudCredential) TableName() string {
	return "cloud_credentials"
}

// CredentialMap decodes the stored blob back into key-value form.
func (c *CloudCredential) CredentialMap() (map[string]string, error) {
	out := map[string]string{}
	if c.Credentials == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(c.Credentials), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type BackupJob struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"size:255;not null"`
	Type          string `gorm:"size:32;not null"`
	Source        string `gorm:"size:255"`
	Destination   string `gorm:"type:text"`
	Schedule      string `gorm:"size:64"`
	RetentionDays int    `gorm:"default:30"`
	LastRun       *time.Time
	NextRun       *time.Time
	Status        string    `gorm:"size:20;default:active"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UserID        uint      `gorm:"index"`
}

func (BackupJob) TableName() string {
	return "backup_jobs"
}

// Destinations decodes the destination column into a provider -> config map.
// An empty column means the job uploads nowhere.
func (j *BackupJob) Destinations() (map[string]map[string]string, error) {
	out := map[string]map[string]string{}
	if j.Destination == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(j.Destination), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDestinations encodes the provider -> config map into the destination column.
func (j *BackupJob) SetDestinations(dest map[string]map[string]string) error {
	if len(dest) == 0 {
		j.Destination = ""
		return nil
	}
	data, err := json.Marshal(dest)
	if err != nil {
		return err
	}
	j.Destination = string(data)
	return nil
}

// BackupHistory is append-only: one row per backup attempt that produced an
// artifact, never mutated after insert.
type BackupHistory struct {
	ID        uint  `gorm:"primaryKey"`
	JobID     *uint `gorm:"index"`
	StartTime time.Time
	EndTime   time.Time
	Size      int64  `gorm:"not null"`
	Status    string `gorm:"size:20"`
	Message   string `gorm:"type:text"`
	Location  string `gorm:"type:text"`
}

func (BackupHistory) TableName() string {
	return "backup_history"
}

// Locations decodes the ordered list of location URIs recorded for this attempt.
func (h *BackupHistory) Locations() []string {
	if h.Location == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(h.Location), &out); err != nil {
		return nil
	}
	return out
}

// SetLocations encodes the location URI list. An empty list is stored as "[]"
// so "no destinations succeeded" is distinguishable from a legacy empty column.
func (h *BackupHistory) SetLocations(uris []string) error {
	if uris == nil {
		uris = []string{}
	}
	data, err := json.Marshal(uris)
	if err != nil {
		return err
	}
	h.Location = string(data)
	return nil
}
