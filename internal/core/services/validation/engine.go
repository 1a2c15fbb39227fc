package validation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/finvolv/case-intake-service/internal/infrastructure/rows"
	"github.com/shopspring/decimal"
)

// dateLayout is the fixed dd-MM-yyyy upload template format.
const dateLayout = "02-01-2006"

// Engine applies field-level and cross-field rules to one upload row.
// It is stateless: validating the same row twice yields the same result.
type Engine struct{}

// NewEngine creates a validation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Validate checks one row and collects every violation. There is no
// short-circuit on first failure: the error ledger reports all problems
// with a row in a single pass.
func (e *Engine) Validate(row *domain.UploadRow) domain.ValidationResult {
	var errs []string

	errs = appendRequired(errs, rows.ColCustomerCode, row.CustomerCode)
	errs = appendRequired(errs, rows.ColFullName, row.FullName)
	errs = appendRequired(errs, rows.ColLoanAccountNumber, row.LoanAccountNumber)
	errs = appendRequired(errs, rows.ColExternalCaseID, row.ExternalCaseID)

	errs = appendDecimal(errs, rows.ColPrincipalAmount, row.PrincipalAmount)
	errs = appendDecimal(errs, rows.ColTotalOutstanding, row.TotalOutstanding)

	if row.DPD != "" {
		dpd, err := strconv.Atoi(row.DPD)
		if err != nil || dpd < 0 {
			errs = append(errs, fmt.Sprintf("Invalid %s: must be a non-negative integer, got %q", rows.ColDPD, row.DPD))
		}
	}

	errs = appendDate(errs, rows.ColDisbursementDate, row.DisbursementDate)
	errs = appendDate(errs, rows.ColDueDate, row.DueDate)

	return domain.ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}

// ParseAmount parses a template decimal field, empty meaning zero.
// Callers must have validated the row first.
func ParseAmount(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// ParseDPD parses the dpd field, empty meaning zero.
func ParseDPD(value string) int {
	if value == "" {
		return 0
	}
	dpd, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return dpd
}

// ParseDate parses a template date field, empty meaning absent.
func ParseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

func appendRequired(errs []string, field, value string) []string {
	if value == "" {
		return append(errs, fmt.Sprintf("%s is required", field))
	}
	return errs
}

func appendDecimal(errs []string, field, value string) []string {
	if value == "" {
		return errs
	}
	amount, err := decimal.NewFromString(value)
	if err != nil || amount.IsNegative() {
		return append(errs, fmt.Sprintf("Invalid %s: must be a non-negative decimal, got %q", field, value))
	}
	return errs
}

func appendDate(errs []string, field, value string) []string {
	if value == "" {
		return errs
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return append(errs, fmt.Sprintf("Invalid %s: must match dd-MM-yyyy, got %q", field, value))
	}
	return errs
}
