package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/finvolv/case-intake-service/internal/infrastructure/rows"
	"github.com/finvolv/case-intake-service/internal/infrastructure/storage"
	"github.com/finvolv/case-intake-service/internal/pkg/config"
	apperrors "github.com/finvolv/case-intake-service/internal/pkg/errors"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testHeader = "externalCaseId,customerCode,fullName,mobileNumber,alternateMobile,email,address,city,state,pincode,loanAccountNumber,bankCode,productType,principalAmount,totalOutstanding,dpd,bucket,disbursementDate,dueDate,geographyCode"

// mockBatchRepository implements BatchRepository for testing
type mockBatchRepository struct {
	mu             sync.Mutex
	batches        map[uuid.UUID]*domain.Batch
	failStatusWith error
}

func newMockBatchRepository() *mockBatchRepository {
	return &mockBatchRepository{batches: make(map[uuid.UUID]*domain.Batch)}
}

func (m *mockBatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *batch
	m.batches[batch.ID] = &copied
	return nil
}

func (m *mockBatchRepository) GetByID(ctx context.Context, batchID uuid.UUID) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	copied := *batch
	return &copied, nil
}

func (m *mockBatchRepository) Update(ctx context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *batch
	m.batches[batch.ID] = &copied
	return nil
}

func (m *mockBatchRepository) UpdateStatus(ctx context.Context, batchID uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatusWith != nil {
		return m.failStatusWith
	}
	if batch, ok := m.batches[batchID]; ok {
		batch.Status = status
	}
	return nil
}

// mockErrorLedger implements ErrorLedger for testing
type mockErrorLedger struct {
	mu      sync.Mutex
	entries []domain.BatchError
}

func (m *mockErrorLedger) Record(ctx context.Context, batchID uuid.UUID, rowNumber int, externalCaseID string, errorType domain.ErrorType, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.BatchError{
		BatchID:        batchID,
		RowNumber:      rowNumber,
		ExternalCaseID: externalCaseID,
		ErrorType:      errorType,
		Message:        message,
	})
	return nil
}

func (m *mockErrorLedger) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.BatchError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BatchError
	for _, e := range m.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockCaseRepository simulates the persistence layer's uniqueness
// constraints: a repeated loan account or external case id collides the
// way the database would.
type mockCaseRepository struct {
	mu           sync.Mutex
	loanAccounts map[string]bool
	externalIDs  map[string]bool
	failWith     error
	created      int
}

func newMockCaseRepository() *mockCaseRepository {
	return &mockCaseRepository{
		loanAccounts: make(map[string]bool),
		externalIDs:  make(map[string]bool),
	}
}

func (m *mockCaseRepository) CreateCaseGraph(ctx context.Context, customer *domain.Customer, loan *domain.Loan, kase *domain.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return m.failWith
	}
	if m.loanAccounts[loan.LoanAccountNumber] {
		return &domain.ConstraintError{Kind: domain.ConstraintLoanAccount, Constraint: "ux_loans_loan_account_number"}
	}
	if m.externalIDs[kase.ExternalCaseID] {
		return &domain.ConstraintError{Kind: domain.ConstraintExternalCase, Constraint: "ux_cases_external_case_id"}
	}

	m.loanAccounts[loan.LoanAccountNumber] = true
	m.externalIDs[kase.ExternalCaseID] = true
	m.created++
	return nil
}

func (m *mockCaseRepository) CountCases(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(m.created), nil
}

// mockRunLocker implements RunLocker for testing
type mockRunLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMockRunLocker() *mockRunLocker {
	return &mockRunLocker{held: make(map[string]bool)}
}

func (m *mockRunLocker) Acquire(ctx context.Context, batchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[batchID] {
		return false, nil
	}
	m.held[batchID] = true
	return true, nil
}

func (m *mockRunLocker) Release(ctx context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, batchID)
	return nil
}

func (m *mockRunLocker) IsHeld(ctx context.Context, batchID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[batchID], nil
}

// mockEnqueuer implements TaskEnqueuer for testing
type mockEnqueuer struct {
	tasks    []*asynq.Task
	failWith error
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.tasks = append(m.tasks, task)
	return &asynq.TaskInfo{ID: "test", Queue: "default", Type: task.Type()}, nil
}

type fixture struct {
	service *Service
	batches *mockBatchRepository
	ledger  *mockErrorLedger
	cases   *mockCaseRepository
	locks   *mockRunLocker
	store   *storage.LocalStorage
	queue   *mockEnqueuer
	baseDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	baseDir := t.TempDir()
	store, err := storage.NewLocalStorage(&config.StorageConfig{BasePath: baseDir}, testLogger())
	require.NoError(t, err)

	f := &fixture{
		batches: newMockBatchRepository(),
		ledger:  &mockErrorLedger{},
		cases:   newMockCaseRepository(),
		locks:   newMockRunLocker(),
		store:   store,
		queue:   &mockEnqueuer{},
		baseDir: baseDir,
	}

	f.service = NewService(f.batches, f.ledger, f.cases, f.locks, f.store, rows.NewSourceFactory(), f.queue, testLogger())
	return f
}

func (f *fixture) upload(t *testing.T, csvContent string) uuid.UUID {
	t.Helper()
	batchID, err := f.service.StartUpload(context.Background(), strings.NewReader(csvContent), "upload.csv", "ops@example.com")
	require.NoError(t, err)
	return batchID
}

func (f *fixture) uploadDir(batchID uuid.UUID) string {
	return filepath.Join(f.baseDir, batchID.String())
}

func TestService_ProcessBatch_MixedRows(t *testing.T) {
	f := newFixture(t)

	// row 1 valid, row 2 blank fullName, row 3 repeats row 1's loan account
	content := testHeader + "\n" +
		"EXT-1,CUST-1,Asha Verma,,,,,,,,LN-1,HDFC,PERSONAL,1000,900,10,B1,01-01-2024,01-01-2025,MH\n" +
		"EXT-2,CUST-2,,,,,,,,,LN-2,HDFC,PERSONAL,1000,900,10,B1,01-01-2024,01-01-2025,MH\n" +
		"EXT-3,CUST-3,Ravi Nair,,,,,,,,LN-1,HDFC,PERSONAL,1000,900,10,B1,01-01-2024,01-01-2025,MH\n"

	batchID := f.upload(t, content)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)

	assert.Equal(t, domain.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 2, summary.Invalid)
	assert.Equal(t, 1, summary.Duplicate)
	assert.Equal(t, summary.Total, summary.Valid+summary.Invalid)
	require.NotNil(t, summary.CompletedAt)

	entries, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 2, entries[0].RowNumber)
	assert.Equal(t, domain.ErrorTypeValidation, entries[0].ErrorType)
	assert.Equal(t, "fullName is required", entries[0].Message)

	assert.Equal(t, 3, entries[1].RowNumber)
	assert.Equal(t, domain.ErrorTypeDuplicate, entries[1].ErrorType)
	assert.Equal(t, "EXT-3", entries[1].ExternalCaseID)

	// temp file is gone on the success path
	assert.NoDirExists(t, f.uploadDir(batchID))
}

func TestService_ProcessBatch_MultipleViolationsOneRow(t *testing.T) {
	f := newFixture(t)

	content := testHeader + "\n" +
		"EXT-1,,,,,,,,,,LN-1,HDFC,PERSONAL,abc,900,10,B1,01-01-2024,01-01-2025,MH\n"

	batchID := f.upload(t, content)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Invalid)

	// one ledger entry per violation, all for the same row
	entries, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, 1, e.RowNumber)
		assert.Equal(t, domain.ErrorTypeValidation, e.ErrorType)
	}
}

func TestService_ProcessBatch_MalformedHeaderFails(t *testing.T) {
	f := newFixture(t)

	batchID := f.upload(t, "externalCaseId,customerCode\nEXT-1,CUST-1\n")
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, summary.Status)
	assert.Equal(t, 0, summary.Total)
	require.NotNil(t, summary.CompletedAt)

	// no ledger rows and no temp file even though parsing never started
	entries, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoDirExists(t, f.uploadDir(batchID))
}

func TestService_ProcessBatch_SystemErrorIsIsolatedPerRow(t *testing.T) {
	f := newFixture(t)
	f.cases.failWith = errors.New("connection reset by peer")

	content := testHeader + "\n" +
		"EXT-1,CUST-1,Asha Verma,,,,,,,,LN-1,,,,,,,,,\n" +
		"EXT-2,CUST-2,Ravi Nair,,,,,,,,LN-2,,,,,,,,,\n"

	batchID := f.upload(t, content)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)

	// both rows failed but the batch still completed
	assert.Equal(t, domain.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 0, summary.Valid)
	assert.Equal(t, 2, summary.Invalid)
	assert.Equal(t, 0, summary.Duplicate)

	entries, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, domain.ErrorTypeSystem, e.ErrorType)
		assert.Contains(t, e.Message, "System error")
	}
}

func TestService_ProcessBatch_BusyBatchIsRejected(t *testing.T) {
	f := newFixture(t)

	batchID := f.upload(t, testHeader+"\n")

	ok, err := f.locks.Acquire(context.Background(), batchID.String())
	require.NoError(t, err)
	require.True(t, ok)

	err = f.service.ProcessBatch(context.Background(), batchID)
	require.Error(t, err)
	assert.True(t, IsBusy(err))
}

func TestService_StartUpload_UnsupportedFormat(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.StartUpload(context.Background(), strings.NewReader("x"), "upload.pdf", "ops")
	require.Error(t, err)

	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUnsupportedFormat, appErr.Code)
}

func TestService_StartUpload_Enqueues(t *testing.T) {
	f := newFixture(t)

	batchID := f.upload(t, testHeader+"\n")

	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, "batch:ingest", f.queue.tasks[0].Type())

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPending, summary.Status)
}

func TestService_Reupload(t *testing.T) {
	f := newFixture(t)

	// first run: one valid row, one duplicate
	content := testHeader + "\n" +
		"EXT-1,CUST-1,Asha Verma,,,,,,,,LN-1,,,,,,,,,\n" +
		"EXT-1X,CUST-1,Asha Verma,,,,,,,,LN-1,,,,,,,,,\n"
	batchID := f.upload(t, content)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	firstErrors, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, firstErrors, 1)

	// corrected file gets a fresh loan account
	corrected := testHeader + "\n" +
		"EXT-1X,CUST-1,Asha Verma,,,,,,,,LN-1B,,,,,,,,,\n"
	err = f.service.Reupload(context.Background(), batchID, strings.NewReader(corrected), "corrected.csv", "ops")
	require.NoError(t, err)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)

	// counters reflect the new run only
	assert.Equal(t, domain.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 0, summary.Invalid)

	// original ledger entries survive untouched
	entries, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, firstErrors, entries)
}

func TestService_Reupload_RejectedWhileProcessing(t *testing.T) {
	f := newFixture(t)

	batchID := f.upload(t, testHeader+"\n")
	require.NoError(t, f.batches.UpdateStatus(context.Background(), batchID, domain.BatchStatusProcessing))

	err := f.service.Reupload(context.Background(), batchID, strings.NewReader(testHeader+"\n"), "again.csv", "ops")
	require.Error(t, err)
	assert.True(t, IsBusy(err))
}

func TestService_Reupload_UnknownBatch(t *testing.T) {
	f := newFixture(t)

	err := f.service.Reupload(context.Background(), uuid.New(), strings.NewReader(testHeader+"\n"), "f.csv", "ops")
	require.Error(t, err)

	appErr, ok := apperrors.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeBatchNotFound, appErr.Code)
}

func TestService_ExportFailedRows(t *testing.T) {
	f := newFixture(t)

	content := testHeader + "\n" +
		"EXT-2,CUST-2,,,,,,,,,LN-2,,,,,,,,,\n"
	batchID := f.upload(t, content)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	data, err := f.service.ExportFailedRows(context.Background(), batchID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "errorMessage")
	assert.Contains(t, lines[1], "EXT-2")
	assert.Contains(t, lines[1], "VALIDATION_ERROR")
}

// a customer-code collision that escapes the repository's get-or-create
// retry is a race artifact, not a duplicate row: it must be filed as
// retryable, never counted against the duplicate total
func TestService_ProcessBatch_CustomerRaceIsRetryableNotDuplicate(t *testing.T) {
	f := newFixture(t)
	f.cases.failWith = &domain.ConstraintError{Kind: domain.ConstraintCustomerCode, Constraint: "ux_customers_customer_code"}

	content := testHeader + "\n" +
		"EXT-1,CUST-1,Asha Verma,,,,,,,,LN-1,,,,,,,,,\n"

	batchID := f.upload(t, content)
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 0, summary.Duplicate)

	entries, err := f.service.GetBatchErrors(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ErrorTypeSystem, entries[0].ErrorType)
	assert.Contains(t, entries[0].Message, "System error")
}

// an upload whose run cannot be scheduled must not linger as an eternal
// PENDING batch with an orphaned file
func TestService_StartUpload_EnqueueFailureLeavesNoOrphan(t *testing.T) {
	f := newFixture(t)
	f.queue.failWith = errors.New("redis: connection refused")

	_, err := f.service.StartUpload(context.Background(), strings.NewReader(testHeader+"\n"), "upload.csv", "ops")
	require.Error(t, err)

	f.batches.mu.Lock()
	require.Len(t, f.batches.batches, 1)
	for _, batch := range f.batches.batches {
		assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	}
	f.batches.mu.Unlock()

	leftovers, err := os.ReadDir(f.baseDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestService_Reupload_EnqueueFailureLeavesNoOrphan(t *testing.T) {
	f := newFixture(t)

	batchID := f.upload(t, testHeader+"\n")
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	f.queue.failWith = errors.New("redis: connection refused")
	err := f.service.Reupload(context.Background(), batchID, strings.NewReader(testHeader+"\n"), "again.csv", "ops")
	require.Error(t, err)

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, summary.Status)
	assert.NoDirExists(t, f.uploadDir(batchID))
}

// a retryable failure before the terminal outcome keeps the input file
// so the queue retry can re-read it
func TestService_ProcessBatch_RetryableFailureKeepsUpload(t *testing.T) {
	f := newFixture(t)
	f.batches.failStatusWith = errors.New("connection reset by peer")

	content := testHeader + "\n" +
		"EXT-1,CUST-1,Asha Verma,,,,,,,,LN-1,,,,,,,,,\n"

	batchID := f.upload(t, content)
	require.Error(t, f.service.ProcessBatch(context.Background(), batchID))
	assert.DirExists(t, f.uploadDir(batchID))

	// the retry finds the file intact and completes the run
	f.batches.failStatusWith = nil
	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.Valid)
	assert.NoDirExists(t, f.uploadDir(batchID))
}

// temp file must be gone even when the file vanishes mid-setup
func TestService_ProcessBatch_MissingFileStillCleansUp(t *testing.T) {
	f := newFixture(t)

	batchID := f.upload(t, testHeader+"\n")
	require.NoError(t, os.RemoveAll(f.uploadDir(batchID)))

	require.NoError(t, f.service.ProcessBatch(context.Background(), batchID))

	summary, err := f.service.GetBatchStatus(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, summary.Status)
	assert.NoDirExists(t, f.uploadDir(batchID))
}
