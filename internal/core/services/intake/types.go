package intake

import (
	"context"
	"io"
	"time"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/finvolv/case-intake-service/internal/infrastructure/rows"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// BatchRepository persists batch headers.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.Batch) error
	GetByID(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error)
	Update(ctx context.Context, batch *domain.Batch) error
	UpdateStatus(ctx context.Context, batchID uuid.UUID, status string) error
}

// ErrorLedger records rejected rows durably, each write in its own unit
// of work.
type ErrorLedger interface {
	Record(ctx context.Context, batchID uuid.UUID, rowNumber int, externalCaseID string, errorType domain.ErrorType, message string) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.BatchError, error)
}

// CaseRepository persists the customer/loan/case graph for one accepted
// row as an isolated unit of work, surfacing uniqueness collisions as
// typed ConstraintErrors.
type CaseRepository interface {
	CreateCaseGraph(ctx context.Context, customer *domain.Customer, loan *domain.Loan, kase *domain.Case) error
	CountCases(ctx context.Context) (int64, error)
}

// RunLocker serializes processing runs per batch identifier.
type RunLocker interface {
	Acquire(ctx context.Context, batchID string) (bool, error)
	Release(ctx context.Context, batchID string) error
	IsHeld(ctx context.Context, batchID string) (bool, error)
}

// UploadStore owns temporary upload artifacts.
type UploadStore interface {
	SaveUpload(ctx context.Context, batchID string, filename string, reader io.Reader) (string, error)
	DeleteUpload(ctx context.Context, batchID string) error
}

// SourceFactory opens a row source for a stored upload file.
type SourceFactory interface {
	Open(filePath string) (rows.Source, error)
	IsSupported(fileExt string) bool
}

// TaskEnqueuer schedules background work.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// BatchSummary is the polling view of a batch.
type BatchSummary struct {
	BatchID     uuid.UUID  `json:"batch_id"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Valid       int        `json:"valid"`
	Invalid     int        `json:"invalid"`
	Duplicate   int        `json:"duplicate"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// runTotals are the counters of one processing run. They live on the
// run, never in process-global state: batches run concurrently.
type runTotals struct {
	total     int
	valid     int
	invalid   int
	duplicate int
}
