package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"courtbook/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "courtbook_"

// BackupService writes point-in-time copies of the store with VACUUM INTO.
// Scheduling is left to the caller.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *BackupService) Enabled() bool {
	return s.config.Enabled && s.config.StoragePath != ""
}

// Run performs one backup followed by retention cleanup.
func (s *BackupService) Run(ctx context.Context) error {
	path, err := s.PerformBackup(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled backup failed")
		return err
	}
	s.logger.Info().Str("path", path).Msg("Backup completed successfully")

	removed := s.CleanupOldBackups()
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups removed")
	}
	return nil
}

func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupPath := filepath.Join(s.config.StoragePath,
		fmt.Sprintf("%s%s.db", backupPrefix, s.now().Format("20060102_150405.000")))

	s.logger.Debug().Str("path", backupPath).Msg("Performing database backup using VACUUM INTO")

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}
	return backupPath, nil
}

// CleanupOldBackups removes backups older than the retention window and returns how many were deleted.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0

	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}
