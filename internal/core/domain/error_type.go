package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the four-way triage taxonomy operators use to decide
// whether a rejected row needs a data fix, a duplicate review, or an
// engineering escalation.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeDuplicate  ErrorType = "DUPLICATE_ERROR"
	ErrorTypeData       ErrorType = "DATA_ERROR"
	ErrorTypeSystem     ErrorType = "SYSTEM_ERROR"
)

// ConstraintKind identifies which unique business key collided when the
// persistence layer rejected a row.
type ConstraintKind string

const (
	ConstraintLoanAccount  ConstraintKind = "loan_account_number"
	ConstraintExternalCase ConstraintKind = "external_case_id"
	ConstraintCaseNumber   ConstraintKind = "case_number"
	ConstraintCustomerCode ConstraintKind = "customer_code"
	ConstraintUnknown      ConstraintKind = "unknown"
)

// ConstraintError is a typed uniqueness violation surfaced by the
// persistence layer. The orchestrator classifies rows on the Kind, not
// on the message text.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("Duplicate %s (constraint %s)", e.Kind, e.Constraint)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

// AsConstraintError extracts a ConstraintError from an error chain.
func AsConstraintError(err error) (*ConstraintError, bool) {
	var ce *ConstraintError
	ok := errors.As(err, &ce)
	return ce, ok
}

// ClassifyError maps a row-level persistence failure onto the taxonomy.
// Typed constraint errors win: a collision on a loan account or external
// case id is a duplicate row. A case-number collision is a retryable
// system fault (advisory generator), and so is a customer-code collision:
// the customer is meant to be reused on a code match, so that constraint
// only fires when a concurrent run raced the get-or-create and the retry
// lost too. Untyped errors fall back to message matching.
func ClassifyError(err error) ErrorType {
	if ce, ok := AsConstraintError(err); ok {
		switch ce.Kind {
		case ConstraintLoanAccount, ConstraintExternalCase:
			return ErrorTypeDuplicate
		case ConstraintCaseNumber, ConstraintCustomerCode:
			return ErrorTypeSystem
		}
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies the message-based fallback policy, in order.
func ClassifyMessage(msg string) ErrorType {
	switch {
	case strings.Contains(msg, "Duplicate"):
		return ErrorTypeDuplicate
	case strings.Contains(msg, "required"), strings.Contains(msg, "Invalid"):
		return ErrorTypeValidation
	case strings.Contains(msg, "System error"):
		return ErrorTypeSystem
	default:
		return ErrorTypeData
	}
}
