package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/finvolv/case-intake-service/internal/pkg/config"
)

// LocalStorage holds temporary upload artifacts on the local
// filesystem. One upload file is owned by exactly one processing run
// and is deleted by that run on every exit path; the retention sweep
// only mops up after crashed workers.
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg *config.StorageConfig, logger *slog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		logger:   logger,
	}, nil
}

// SaveUpload writes an uploaded file under its batch id and returns the
// stored path.
func (s *LocalStorage) SaveUpload(ctx context.Context, batchID string, filename string, reader io.Reader) (string, error) {
	uploadDir := filepath.Join(s.basePath, batchID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	safeName := filepath.Base(filename)
	destPath := filepath.Join(uploadDir, safeName)

	destFile, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	size, err := io.Copy(destFile, reader)
	if err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	s.logger.Info("upload saved",
		slog.String("batch_id", batchID),
		slog.String("filename", safeName),
		slog.Int64("size", size))

	return destPath, nil
}

// DeleteUpload removes every artifact stored for a batch. Missing files
// are not an error: cleanup runs on every exit path and may race a
// prior cleanup.
func (s *LocalStorage) DeleteUpload(ctx context.Context, batchID string) error {
	uploadDir := filepath.Join(s.basePath, batchID)
	if err := os.RemoveAll(uploadDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}

	s.logger.Info("upload deleted", slog.String("batch_id", batchID))
	return nil
}

// CleanupOldFiles removes upload directories older than the given
// retention window.
func (s *LocalStorage) CleanupOldFiles(ctx context.Context, olderThan time.Duration) error {
	cutoffTime := time.Now().Add(-olderThan)

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read storage directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(s.basePath, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to get file info",
				slog.String("path", dirPath),
				slog.Any("error", err))
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			if err := os.RemoveAll(dirPath); err != nil {
				s.logger.Warn("failed to remove directory",
					slog.String("path", dirPath),
					slog.Any("error", err))
			} else {
				s.logger.Debug("removed old upload",
					slog.String("path", dirPath),
					slog.Time("mod_time", info.ModTime()))
			}
		}
	}

	s.logger.Info("cleanup completed", slog.Duration("older_than", olderThan))
	return nil
}
