package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/finvolv/case-intake-service/internal/core/services/casenum"
	"github.com/finvolv/case-intake-service/internal/core/services/validation"
	"github.com/finvolv/case-intake-service/internal/infrastructure/export"
	"github.com/finvolv/case-intake-service/internal/infrastructure/queue"
	apperrors "github.com/finvolv/case-intake-service/internal/pkg/errors"
	"github.com/google/uuid"
)

// countFlushInterval controls how often running counters are persisted
// to the batch header during a run, so pollers see progress.
const countFlushInterval = 100

// Service owns the batch lifecycle: it accepts uploads, schedules the
// background run, drives row-by-row processing with per-row failure
// isolation, and finalizes the batch.
type Service struct {
	batches   BatchRepository
	ledger    ErrorLedger
	cases     CaseRepository
	locks     RunLocker
	store     UploadStore
	sources   SourceFactory
	tasks     TaskEnqueuer
	validator *validation.Engine
	caseNums  *casenum.Generator
	logger    *slog.Logger
}

// NewService creates the intake service.
func NewService(
	batches BatchRepository,
	ledger ErrorLedger,
	cases CaseRepository,
	locks RunLocker,
	store UploadStore,
	sources SourceFactory,
	tasks TaskEnqueuer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		batches:   batches,
		ledger:    ledger,
		cases:     cases,
		locks:     locks,
		store:     store,
		sources:   sources,
		tasks:     tasks,
		validator: validation.NewEngine(),
		caseNums:  casenum.NewGenerator(),
		logger:    logger,
	}
}

// StartUpload accepts a new upload: it stores the file, creates the
// batch header in PENDING, and enqueues the background run. The caller
// gets the batch id immediately and polls for the outcome.
func (s *Service) StartUpload(ctx context.Context, file io.Reader, filename, uploadedBy string) (uuid.UUID, error) {
	if !s.sources.IsSupported(filepath.Ext(filename)) {
		return uuid.Nil, apperrors.UnsupportedFormat(filepath.Ext(filename))
	}

	batchID := uuid.New()

	filePath, err := s.store.SaveUpload(ctx, batchID.String(), filename, file)
	if err != nil {
		return uuid.Nil, apperrors.InternalWrap(err, "failed to store upload")
	}

	batch := &domain.Batch{
		ID:               batchID,
		OriginalFilename: filename,
		FilePath:         filePath,
		UploadedBy:       uploadedBy,
		Status:           domain.BatchStatusPending,
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		s.discardUpload(ctx, batchID)
		return uuid.Nil, apperrors.DatabaseError(err)
	}

	if err := s.enqueueRun(ctx, batchID); err != nil {
		s.abandonUnscheduled(ctx, batchID)
		return uuid.Nil, err
	}

	s.logger.Info("upload accepted",
		slog.String("batch_id", batchID.String()),
		slog.String("filename", filename),
		slog.String("uploaded_by", uploadedBy))

	return batchID, nil
}

// Reupload re-runs the pipeline for an existing batch against a new
// file containing corrected rows. It is rejected while a run is active.
// Previously recorded ledger entries are retained untouched; the header
// counters reflect the new run.
func (s *Service) Reupload(ctx context.Context, batchID uuid.UUID, file io.Reader, filename, uploadedBy string) error {
	if !s.sources.IsSupported(filepath.Ext(filename)) {
		return apperrors.UnsupportedFormat(filepath.Ext(filename))
	}

	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return apperrors.BatchNotFound(batchID.String())
	}

	if batch.Status == domain.BatchStatusProcessing {
		return apperrors.BatchBusy(batchID.String())
	}
	if held, err := s.locks.IsHeld(ctx, batchID.String()); err == nil && held {
		return apperrors.BatchBusy(batchID.String())
	}

	filePath, err := s.store.SaveUpload(ctx, batchID.String(), filename, file)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to store upload")
	}

	batch.OriginalFilename = filename
	batch.FilePath = filePath
	batch.UploadedBy = uploadedBy
	batch.Status = domain.BatchStatusPending
	batch.TotalRows = 0
	batch.ValidRows = 0
	batch.InvalidRows = 0
	batch.DuplicateRows = 0
	batch.CompletedAt = nil

	if err := s.batches.Update(ctx, batch); err != nil {
		return apperrors.DatabaseError(err)
	}

	if err := s.enqueueRun(ctx, batchID); err != nil {
		s.abandonUnscheduled(ctx, batchID)
		return err
	}

	s.logger.Info("reupload accepted",
		slog.String("batch_id", batchID.String()),
		slog.String("filename", filename),
		slog.String("uploaded_by", uploadedBy))

	return nil
}

// ProcessBatch runs the row-processing loop for one batch. It is
// executed on a worker, decoupled from the trigger request. A busy
// batch returns BatchBusy so the queue retries later.
func (s *Service) ProcessBatch(ctx context.Context, batchID uuid.UUID) error {
	log := s.logger.With(slog.String("batch_id", batchID.String()))

	acquired, err := s.locks.Acquire(ctx, batchID.String())
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return apperrors.BatchBusy(batchID.String())
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), batchID.String()); err != nil {
			log.Warn("failed to release run lock", slog.Any("error", err))
		}
	}()

	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	if err := s.batches.UpdateStatus(ctx, batchID, domain.BatchStatusProcessing); err != nil {
		return fmt.Errorf("failed to mark batch processing: %w", err)
	}
	batch.Status = domain.BatchStatusProcessing

	log.Info("batch processing started", slog.String("file", batch.OriginalFilename))

	source, err := s.sources.Open(batch.FilePath)
	if err != nil {
		log.Error("failed to open upload", slog.Any("error", err))
		return s.finalize(ctx, batch, runTotals{}, domain.BatchStatusFailed)
	}
	defer source.Close()

	var totals runTotals
	for {
		row, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Fatal outside per-row isolation: stop, no further rows.
			log.Error("fatal read failure", slog.Any("error", err), slog.Int("rows_read", totals.total))
			return s.finalize(ctx, batch, totals, domain.BatchStatusFailed)
		}

		totals.total++
		s.processRow(ctx, log, batch, row, &totals)

		if totals.total%countFlushInterval == 0 {
			s.flushCounts(ctx, log, batch, totals)
		}
	}

	return s.finalize(ctx, batch, totals, domain.BatchStatusCompleted)
}

// processRow applies the per-row contract: validate, persist, classify
// failures, record ledger entries. A failing row never aborts the loop.
func (s *Service) processRow(ctx context.Context, log *slog.Logger, batch *domain.Batch, row *domain.UploadRow, totals *runTotals) {
	result := s.validator.Validate(row)
	if !result.Valid {
		totals.invalid++
		for _, msg := range result.Errors {
			s.record(ctx, log, batch.ID, row, domain.ClassifyMessage(msg), msg)
		}
		return
	}

	if err := s.persistRow(ctx, batch, row); err != nil {
		totals.invalid++

		errorType := domain.ClassifyError(err)
		switch errorType {
		case domain.ErrorTypeDuplicate:
			totals.duplicate++
			s.record(ctx, log, batch.ID, row, domain.ErrorTypeDuplicate, err.Error())
		default:
			s.record(ctx, log, batch.ID, row, domain.ErrorTypeSystem, fmt.Sprintf("System error: %v", err))
		}

		log.Debug("row rejected",
			slog.Int("row_number", row.RowNumber),
			slog.String("error_type", string(errorType)),
			slog.Any("error", err))
		return
	}

	totals.valid++
}

// persistRow builds the entity graph for one accepted row and commits
// it as a single unit of work.
func (s *Service) persistRow(ctx context.Context, batch *domain.Batch, row *domain.UploadRow) error {
	customer := &domain.Customer{
		CustomerCode:    row.CustomerCode,
		FullName:        row.FullName,
		MobileNumber:    row.MobileNumber,
		AlternateMobile: row.AlternateMobile,
		Email:           row.Email,
		Address:         row.Address,
		City:            row.City,
		State:           row.State,
		Pincode:         row.Pincode,
	}

	loan := &domain.Loan{
		LoanAccountNumber: row.LoanAccountNumber,
		BankCode:          row.BankCode,
		ProductType:       row.ProductType,
		PrincipalAmount:   validation.ParseAmount(row.PrincipalAmount),
		TotalOutstanding:  validation.ParseAmount(row.TotalOutstanding),
		DPD:               validation.ParseDPD(row.DPD),
		Bucket:            row.Bucket,
		DisbursementDate:  validation.ParseDate(row.DisbursementDate),
		DueDate:           validation.ParseDate(row.DueDate),
	}

	total, err := s.cases.CountCases(ctx)
	if err != nil {
		return fmt.Errorf("failed to derive case number: %w", err)
	}

	kase := &domain.Case{
		CaseNumber:     s.caseNums.Next(total),
		ExternalCaseID: row.ExternalCaseID,
		BatchID:        batch.ID,
		Status:         domain.CaseStatusUnallocated,
		GeographyCode:  row.GeographyCode,
	}

	return s.cases.CreateCaseGraph(ctx, customer, loan, kase)
}

// record writes one ledger entry. Losing a ledger entry must not crash
// the batch: failures are logged only.
func (s *Service) record(ctx context.Context, log *slog.Logger, batchID uuid.UUID, row *domain.UploadRow, errorType domain.ErrorType, message string) {
	if err := s.ledger.Record(ctx, batchID, row.RowNumber, row.ExternalCaseID, errorType, message); err != nil {
		log.Error("failed to record ledger entry",
			slog.Int("row_number", row.RowNumber),
			slog.Any("error", err))
	}
}

// flushCounts persists the running counters mid-run. Counters only grow
// while the batch is PROCESSING.
func (s *Service) flushCounts(ctx context.Context, log *slog.Logger, batch *domain.Batch, totals runTotals) {
	batch.TotalRows = totals.total
	batch.ValidRows = totals.valid
	batch.InvalidRows = totals.invalid
	batch.DuplicateRows = totals.duplicate

	if err := s.batches.Update(ctx, batch); err != nil {
		log.Warn("failed to flush running counts", slog.Any("error", err))
	}
}

// finalize writes the terminal status, the final counters, and the
// completion timestamp, then discards the upload artifact. The file is
// only deleted once a terminal outcome is durably recorded: a run that
// fails before this point keeps its input so the queue retry can
// re-read it, and the retention sweep covers runs that never come back.
func (s *Service) finalize(ctx context.Context, batch *domain.Batch, totals runTotals, status string) error {
	now := time.Now().UTC()
	batch.Status = status
	batch.TotalRows = totals.total
	batch.ValidRows = totals.valid
	batch.InvalidRows = totals.invalid
	batch.DuplicateRows = totals.duplicate
	batch.CompletedAt = &now

	if err := s.batches.Update(ctx, batch); err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}

	s.discardUpload(context.WithoutCancel(ctx), batch.ID)

	s.logger.Info("batch finalized",
		slog.String("batch_id", batch.ID.String()),
		slog.String("status", status),
		slog.Int("total", totals.total),
		slog.Int("valid", totals.valid),
		slog.Int("invalid", totals.invalid),
		slog.Int("duplicate", totals.duplicate))

	return nil
}

// abandonUnscheduled cleans up a batch whose run could not be enqueued:
// the upload is discarded and the header moved to FAILED so pollers
// never see a PENDING batch that no worker will ever pick up.
func (s *Service) abandonUnscheduled(ctx context.Context, batchID uuid.UUID) {
	s.discardUpload(ctx, batchID)
	if err := s.batches.UpdateStatus(ctx, batchID, domain.BatchStatusFailed); err != nil {
		s.logger.Error("failed to mark unscheduled batch failed",
			slog.String("batch_id", batchID.String()),
			slog.Any("error", err))
	}
}

// discardUpload deletes the temporary upload artifact, logging failures.
func (s *Service) discardUpload(ctx context.Context, batchID uuid.UUID) {
	if err := s.store.DeleteUpload(ctx, batchID.String()); err != nil {
		s.logger.Warn("failed to delete upload artifact",
			slog.String("batch_id", batchID.String()),
			slog.Any("error", err))
	}
}

// enqueueRun schedules the background run for a batch.
func (s *Service) enqueueRun(ctx context.Context, batchID uuid.UUID) error {
	task, err := queue.NewBatchIngestTask(batchID)
	if err != nil {
		return apperrors.InternalWrap(err, "failed to build ingest task")
	}
	if _, err := s.tasks.EnqueueContext(ctx, task); err != nil {
		return apperrors.QueueError(err)
	}
	return nil
}

// GetBatchStatus returns the polling view of a batch.
func (s *Service) GetBatchStatus(ctx context.Context, batchID uuid.UUID) (*BatchSummary, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, apperrors.BatchNotFound(batchID.String())
	}

	return &BatchSummary{
		BatchID:     batch.ID,
		Status:      batch.Status,
		Total:       batch.TotalRows,
		Valid:       batch.ValidRows,
		Invalid:     batch.InvalidRows,
		Duplicate:   batch.DuplicateRows,
		CreatedAt:   batch.CreatedAt,
		CompletedAt: batch.CompletedAt,
	}, nil
}

// GetBatchErrors returns the ordered error ledger of a batch.
func (s *Service) GetBatchErrors(ctx context.Context, batchID uuid.UUID) ([]domain.BatchError, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, apperrors.BatchNotFound(batchID.String())
	}
	return s.ledger.ListByBatch(ctx, batchID)
}

// ExportFailedRows renders the error ledger of a batch as CSV bytes.
func (s *Service) ExportFailedRows(ctx context.Context, batchID uuid.UUID) ([]byte, error) {
	entries, err := s.GetBatchErrors(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return export.FailedRowsCSV(entries)
}

// ExportFailedRowsXLSX renders the error ledger of a batch as an Excel
// workbook.
func (s *Service) ExportFailedRowsXLSX(ctx context.Context, batchID uuid.UUID) ([]byte, error) {
	entries, err := s.GetBatchErrors(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return export.FailedRowsXLSX(entries)
}

// IsBusy reports whether an AppError marks a batch as busy, so the
// worker can distinguish retryable contention from real failures.
func IsBusy(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == apperrors.ErrCodeBatchBusy
	}
	return false
}
