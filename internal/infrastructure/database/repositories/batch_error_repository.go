package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchErrorRepository is the error ledger. Every write runs in its own
// session, independent of the unit of work for the row that failed, so
// a rolled-back row still leaves its ledger entry behind.
type BatchErrorRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewBatchErrorRepository creates a new repository instance
func NewBatchErrorRepository(db *gorm.DB, logger *slog.Logger) *BatchErrorRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &BatchErrorRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one immutable entry to the ledger.
func (r *BatchErrorRepository) Record(ctx context.Context, batchID uuid.UUID, rowNumber int, externalCaseID string, errorType domain.ErrorType, message string) error {
	entry := domain.BatchError{
		BatchID:        batchID,
		RowNumber:      rowNumber,
		ExternalCaseID: externalCaseID,
		ErrorType:      errorType,
		Message:        message,
	}

	err := r.db.WithContext(ctx).Create(&entry).Error
	if err != nil {
		r.logger.Error("failed to record batch error",
			slog.String("batch_id", batchID.String()),
			slog.Int("row_number", rowNumber),
			slog.Any("error", err))
		return fmt.Errorf("failed to record batch error: %w", err)
	}

	return nil
}

// ListByBatch returns every ledger entry for a batch, ordered by row
// number then creation time (stable across re-upload runs).
func (r *BatchErrorRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.BatchError, error) {
	var entries []domain.BatchError

	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("row_number ASC, created_at ASC").
		Find(&entries).
		Error

	if err != nil {
		r.logger.Error("failed to list batch errors",
			slog.String("batch_id", batchID.String()),
			slog.Any("error", err))
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return entries, nil
}

// CountDistinctRows returns how many distinct source rows have at least
// one ledger entry for a batch.
func (r *BatchErrorRepository) CountDistinctRows(ctx context.Context, batchID uuid.UUID) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&domain.BatchError{}).
		Where("batch_id = ?", batchID).
		Distinct("row_number").
		Count(&count).
		Error

	if err != nil {
		return 0, fmt.Errorf("database query failed: %w", err)
	}

	return count, nil
}
