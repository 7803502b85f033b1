package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Backup   BackupConfig   `yaml:"backup"`
	Telegram TelegramConfig `yaml:"telegram"`
	LockDir  string         `yaml:"lock_dir"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DSN builds the MySQL DSN for the bookkeeping database.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type BackupConfig struct {
	// SnapshotCommand is the external snapshot producer; the artifact path is
	// appended as `--output <path>`.
	SnapshotCommand []string `yaml:"snapshot_command"`
	TempDir         string   `yaml:"temp_dir"`
	// BackupDir is where locally kept artifacts live, for listing.
	BackupDir string `yaml:"backup_dir"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Database.Host == "" {
		cfg.Database.Host = "127.0.0.1"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "easyinstall"
	}
	if len(cfg.Backup.SnapshotCommand) == 0 {
		cfg.Backup.SnapshotCommand = []string{"easyinstall", "backup"}
	}
	if cfg.Backup.TempDir == "" {
		cfg.Backup.TempDir = "/tmp/easyinstall-worker"
	}
	if cfg.Backup.BackupDir == "" {
		cfg.Backup.BackupDir = "/backups"
	}
	if cfg.LockDir == "" {
		cfg.LockDir = "/tmp"
	}

	return &cfg, nil
}
