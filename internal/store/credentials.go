package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sugan0927/easyinstall-worker/internal/model"
	"github.com/sugan0927/easyinstall-worker/internal/upload"
)

// ErrNotConfigured is returned when a user has no stored credentials matching
// the lookup. It is the upload layer's credential-missing sentinel, so a
// runner can treat the miss as that destination's failure.
var ErrNotConfigured = upload.ErrCredentialMissing

// Credentials stores one opaque credential blob per (user, provider).
type Credentials struct {
	db *gorm.DB
}

func NewCredentials(db *gorm.DB) *Credentials {
	return &Credentials{db: db}
}

// Get returns the stored credential blob for one provider.
func (s *Credentials) Get(userID uint, provider string) (map[string]string, error) {
	var row model.CloudCredential
	err := s.db.Where("user_id = ? AND provider = ?", userID, provider).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return row.CredentialMap()
}

// GetDefault returns the user's currently flagged default row, whichever
// provider it belongs to. The default flag is owner-scoped: when several
// providers were flagged over time, the last Save with makeDefault wins,
// because Save clears the flag across all of the owner's rows first.
func (s *Credentials) GetDefault(userID uint) (string, map[string]string, error) {
	var row model.CloudCredential
	err := s.db.Where("user_id = ? AND is_default = ?", userID, true).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrNotConfigured
	}
	if err != nil {
		return "", nil, fmt.Errorf("load default credentials: %w", err)
	}
	creds, err := row.CredentialMap()
	if err != nil {
		return "", nil, err
	}
	return row.Provider, creds, nil
}

// Save upserts the blob for (user, provider). makeDefault clears the default
// flag on every one of the user's rows before setting it on this one.
func (s *Credentials) Save(userID uint, provider string, creds map[string]string, name string, makeDefault bool) error {
	blob, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if makeDefault {
			if err := tx.Model(&model.CloudCredential{}).
				Where("user_id = ?", userID).
				Update("is_default", false).Error; err != nil {
				return fmt.Errorf("clear default flags: %w", err)
			}
		}

		var row model.CloudCredential
		err := tx.Where("user_id = ? AND provider = ?", userID, provider).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = model.CloudCredential{
				UserID:      userID,
				Provider:    provider,
				Credentials: string(blob),
				Name:        name,
				IsDefault:   makeDefault,
			}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}

		row.Credentials = string(blob)
		row.Name = name
		row.IsDefault = makeDefault
		return tx.Save(&row).Error
	})
}

// ProviderStatus reports whether a provider is configured for a user and
// whether its row carries the default flag.
type ProviderStatus struct {
	Configured bool
	Default    bool
}

// Status reports the configuration state of every known provider.
func (s *Credentials) Status(userID uint) (map[string]ProviderStatus, error) {
	var rows []model.CloudCredential
	if err := s.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	status := map[string]ProviderStatus{
		upload.ProviderS3:     {},
		upload.ProviderGDrive: {},
		upload.ProviderRclone: {},
	}
	for _, row := range rows {
		status[row.Provider] = ProviderStatus{Configured: true, Default: row.IsDefault}
	}
	return status, nil
}
