package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// CaseRepository persists the customer/loan/case graph for one accepted
// row as a single unit of work.
type CaseRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewCaseRepository creates a new repository instance
func NewCaseRepository(db *gorm.DB, logger *slog.Logger) *CaseRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &CaseRepository{
		db:     db,
		logger: logger,
	}
}

// CreateCaseGraph persists one accepted row: get-or-create the customer
// by customer code, insert the loan, insert the case. The three writes
// commit or roll back together, isolated from the batch header and from
// every other row. Uniqueness collisions come back as typed
// ConstraintErrors.
//
// A customer-code collision is not a rejection: it means a concurrent
// run inserted the same customer between our fetch and our insert, and
// the fetch succeeds on a second attempt.
func (r *CaseRepository) CreateCaseGraph(ctx context.Context, customer *domain.Customer, loan *domain.Loan, kase *domain.Case) error {
	err := r.createGraph(ctx, customer, loan, kase)

	if ce, ok := domain.AsConstraintError(err); ok && ce.Kind == domain.ConstraintCustomerCode {
		r.logger.Debug("lost customer get-or-create race, retrying",
			slog.String("customer_code", customer.CustomerCode))
		err = r.createGraph(ctx, customer, loan, kase)
	}

	return err
}

func (r *CaseRepository) createGraph(ctx context.Context, customer *domain.Customer, loan *domain.Loan, kase *domain.Case) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Reuse an existing customer on code match; never overwrite it.
		var existing domain.Customer
		err := tx.Where("customer_code = ?", customer.CustomerCode).First(&existing).Error
		switch {
		case err == nil:
			*customer = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(customer).Error; err != nil {
				return err
			}
		default:
			return err
		}

		loan.CustomerID = customer.ID
		if err := tx.Create(loan).Error; err != nil {
			return err
		}

		kase.LoanID = loan.ID
		if err := tx.Create(kase).Error; err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return classifyConstraint(err)
	}

	return nil
}

// CountCases returns the running total of persisted cases, used by the
// advisory case-number generator.
func (r *CaseRepository) CountCases(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&domain.Case{}).
		Count(&count).
		Error

	if err != nil {
		r.logger.Error("failed to count cases", slog.Any("error", err))
		return 0, fmt.Errorf("database query failed: %w", err)
	}

	return count, nil
}

// LoanAccountExists reports whether a loan account number is already
// persisted. Exposed for reporting; the authoritative duplicate
// decision during intake is the constraint violation itself.
func (r *CaseRepository) LoanAccountExists(ctx context.Context, loanAccountNumber string) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&domain.Loan{}).
		Where("loan_account_number = ?", loanAccountNumber).
		Count(&count).
		Error

	if err != nil {
		return false, fmt.Errorf("database query failed: %w", err)
	}

	return count > 0, nil
}

// classifyConstraint turns a Postgres unique violation into a typed
// ConstraintError keyed on which business key collided. Anything else
// passes through untouched.
func classifyConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &domain.ConstraintError{
			Kind:       constraintKind(pgErr.ConstraintName),
			Constraint: pgErr.ConstraintName,
			Err:        err,
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &domain.ConstraintError{
			Kind: domain.ConstraintUnknown,
			Err:  err,
		}
	}
	return err
}

func constraintKind(constraintName string) domain.ConstraintKind {
	switch {
	case strings.Contains(constraintName, "loan_account_number"):
		return domain.ConstraintLoanAccount
	case strings.Contains(constraintName, "external_case_id"):
		return domain.ConstraintExternalCase
	case strings.Contains(constraintName, "case_number"):
		return domain.ConstraintCaseNumber
	case strings.Contains(constraintName, "customer_code"):
		return domain.ConstraintCustomerCode
	default:
		return domain.ConstraintUnknown
	}
}
