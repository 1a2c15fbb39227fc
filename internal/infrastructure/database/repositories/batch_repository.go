package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchRepository persists batch headers using GORM
type BatchRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewBatchRepository creates a new repository instance
func NewBatchRepository(db *gorm.DB, logger *slog.Logger) *BatchRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new batch header
func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	err := r.db.WithContext(ctx).Create(batch).Error
	if err != nil {
		r.logger.Error("failed to create batch",
			slog.String("batch_id", batch.ID.String()),
			slog.Any("error", err))
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// GetByID fetches a batch header by its identifier
func (r *BatchRepository) GetByID(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	var batch domain.Batch

	err := r.db.WithContext(ctx).
		First(&batch, "id = ?", batchID).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	if err != nil {
		r.logger.Error("failed to get batch",
			slog.String("batch_id", batchID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return &batch, nil
}

// Update saves the full batch header. Only the orchestrator mutates
// batch rows, and only one run per batch is ever active.
func (r *BatchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	err := r.db.WithContext(ctx).Save(batch).Error
	if err != nil {
		r.logger.Error("failed to update batch",
			slog.String("batch_id", batch.ID.String()),
			slog.Any("error", err))
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return nil
}

// UpdateStatus transitions a batch to a new status without touching the
// counter columns.
func (r *BatchRepository) UpdateStatus(ctx context.Context, batchID uuid.UUID, status string) error {
	err := r.db.WithContext(ctx).
		Model(&domain.Batch{}).
		Where("id = ?", batchID).
		Update("status", status).
		Error

	if err != nil {
		r.logger.Error("failed to update batch status",
			slog.String("batch_id", batchID.String()),
			slog.String("status", status),
			slog.Any("error", err))
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	return nil
}
