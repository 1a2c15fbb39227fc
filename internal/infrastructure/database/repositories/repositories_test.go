package repositories

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupTestDB creates a PostgreSQL testcontainer for testing
func setupTestDB(t *testing.T) *gorm.DB {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("failed to start postgres container (docker unavailable?): %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(pgdriver.Open(connStr), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&domain.Batch{},
		&domain.BatchError{},
		&domain.Customer{},
		&domain.Loan{},
		&domain.Case{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGraph(batchID uuid.UUID, customerCode, loanAccount, externalCaseID, caseNumber string) (*domain.Customer, *domain.Loan, *domain.Case) {
	customer := &domain.Customer{
		CustomerCode: customerCode,
		FullName:     "Asha Verma",
	}
	loan := &domain.Loan{
		LoanAccountNumber: loanAccount,
		PrincipalAmount:   decimal.RequireFromString("250000.00"),
		TotalOutstanding:  decimal.RequireFromString("198750.50"),
		DPD:               45,
	}
	kase := &domain.Case{
		CaseNumber:     caseNumber,
		ExternalCaseID: externalCaseID,
		BatchID:        batchID,
		Status:         domain.CaseStatusUnallocated,
	}
	return customer, loan, kase
}

func createBatch(t *testing.T, db *gorm.DB) *domain.Batch {
	t.Helper()
	batch := &domain.Batch{
		OriginalFilename: "upload.csv",
		Status:           domain.BatchStatusPending,
	}
	require.NoError(t, db.Create(batch).Error)
	return batch
}

func TestBatchRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRepository(db, testLogger())
	ctx := context.Background()

	batch := &domain.Batch{
		OriginalFilename: "upload.csv",
		UploadedBy:       "ops@example.com",
		Status:           domain.BatchStatusPending,
	}
	require.NoError(t, repo.Create(ctx, batch))
	require.NotEqual(t, uuid.Nil, batch.ID)

	loaded, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusPending, loaded.Status)

	require.NoError(t, repo.UpdateStatus(ctx, batch.ID, domain.BatchStatusProcessing))

	now := time.Now().UTC()
	loaded.Status = domain.BatchStatusCompleted
	loaded.TotalRows = 3
	loaded.ValidRows = 1
	loaded.InvalidRows = 2
	loaded.DuplicateRows = 1
	loaded.CompletedAt = &now
	require.NoError(t, repo.Update(ctx, loaded))

	final, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, final.Status)
	assert.Equal(t, final.TotalRows, final.ValidRows+final.InvalidRows)
	assert.NotNil(t, final.CompletedAt)
}

func TestBatchRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchRepository(db, testLogger())

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestBatchErrorRepository_RecordAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBatchErrorRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	require.NoError(t, repo.Record(ctx, batch.ID, 3, "EXT-3", domain.ErrorTypeDuplicate, "Duplicate loan_account_number"))
	require.NoError(t, repo.Record(ctx, batch.ID, 2, "EXT-2", domain.ErrorTypeValidation, "fullName is required"))
	require.NoError(t, repo.Record(ctx, batch.ID, 2, "EXT-2", domain.ErrorTypeValidation, "Invalid dpd: must be a non-negative integer, got \"x\""))

	entries, err := repo.ListByBatch(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// ordered by row number
	assert.Equal(t, 2, entries[0].RowNumber)
	assert.Equal(t, 2, entries[1].RowNumber)
	assert.Equal(t, 3, entries[2].RowNumber)

	distinct, err := repo.CountDistinctRows(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), distinct)
}

func TestCaseRepository_CreateCaseGraph(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	customer, loan, kase := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, customer, loan, kase))

	count, err := repo.CountCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	exists, err := repo.LoanAccountExists(ctx, "LN-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCaseRepository_CustomerGetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	first, loan1, case1 := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, first, loan1, case1))

	// same customer code, different name: existing record is reused,
	// never overwritten
	second, loan2, case2 := newGraph(batch.ID, "CUST-1", "LN-2", "EXT-2", "CASE-2026-000002")
	second.FullName = "A. Verma"
	require.NoError(t, repo.CreateCaseGraph(ctx, second, loan2, case2))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Asha Verma", second.FullName)
	assert.Equal(t, second.ID, loan2.CustomerID)

	var customerCount int64
	require.NoError(t, db.Model(&domain.Customer{}).Count(&customerCount).Error)
	assert.Equal(t, int64(1), customerCount)
}

func TestCaseRepository_CustomerRaceLoserRetriesAndReuses(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	// A concurrent run inserts the same customer between our fetch and
	// our insert: sneak the conflicting row in right before the first
	// customer create, so the transaction hits the unique index.
	var raced bool
	err := db.Callback().Create().Before("gorm:create").Register("conflicting_customer", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "customers" {
			return
		}
		raced = true
		winner := &domain.Customer{CustomerCode: "CUST-1", FullName: "Winner"}
		require.NoError(t, db.Session(&gorm.Session{NewDB: true}).Create(winner).Error)
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Callback().Create().Remove("conflicting_customer")
	})

	customer, loan, kase := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, customer, loan, kase))

	// the row persisted against the winner's customer, not a duplicate
	assert.Equal(t, "Winner", customer.FullName)
	assert.Equal(t, customer.ID, loan.CustomerID)

	var customerCount int64
	require.NoError(t, db.Model(&domain.Customer{}).Count(&customerCount).Error)
	assert.Equal(t, int64(1), customerCount)

	count, err := repo.CountCases(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCaseRepository_DuplicateLoanAccountIsTyped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	c1, l1, k1 := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, c1, l1, k1))

	c2, l2, k2 := newGraph(batch.ID, "CUST-2", "LN-1", "EXT-2", "CASE-2026-000002")
	err := repo.CreateCaseGraph(ctx, c2, l2, k2)
	require.Error(t, err)

	ce, ok := domain.AsConstraintError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ConstraintLoanAccount, ce.Kind)
	assert.Equal(t, domain.ErrorTypeDuplicate, domain.ClassifyError(err))
}

func TestCaseRepository_DuplicateExternalCaseIDIsTyped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	c1, l1, k1 := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, c1, l1, k1))

	c2, l2, k2 := newGraph(batch.ID, "CUST-2", "LN-2", "EXT-1", "CASE-2026-000002")
	err := repo.CreateCaseGraph(ctx, c2, l2, k2)
	require.Error(t, err)

	ce, ok := domain.AsConstraintError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ConstraintExternalCase, ce.Kind)
}

func TestCaseRepository_CaseNumberCollisionIsSystemError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	c1, l1, k1 := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, c1, l1, k1))

	c2, l2, k2 := newGraph(batch.ID, "CUST-2", "LN-2", "EXT-2", "CASE-2026-000001")
	err := repo.CreateCaseGraph(ctx, c2, l2, k2)
	require.Error(t, err)

	ce, ok := domain.AsConstraintError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ConstraintCaseNumber, ce.Kind)
	assert.Equal(t, domain.ErrorTypeSystem, domain.ClassifyError(err))
}

func TestCaseRepository_RollbackLeavesNoPartialGraph(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCaseRepository(db, testLogger())
	ctx := context.Background()

	batch := createBatch(t, db)

	c1, l1, k1 := newGraph(batch.ID, "CUST-1", "LN-1", "EXT-1", "CASE-2026-000001")
	require.NoError(t, repo.CreateCaseGraph(ctx, c1, l1, k1))

	// the loan insert succeeds inside the transaction, the case insert
	// collides; the whole unit of work must roll back
	c2, l2, k2 := newGraph(batch.ID, "CUST-2", "LN-2", "EXT-1", "CASE-2026-000002")
	require.Error(t, repo.CreateCaseGraph(ctx, c2, l2, k2))

	var loanCount int64
	require.NoError(t, db.Model(&domain.Loan{}).Count(&loanCount).Error)
	assert.Equal(t, int64(1), loanCount)

	var customerCount int64
	require.NoError(t, db.Model(&domain.Customer{}).Count(&customerCount).Error)
	assert.Equal(t, int64(1), customerCount)
}
