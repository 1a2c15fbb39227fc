package rows

import (
	"fmt"
	"strings"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"golang.org/x/text/unicode/norm"
)

// Upload template columns, in order. The header row must contain every
// one of them; extra columns are ignored.
const (
	ColExternalCaseID    = "externalCaseId"
	ColCustomerCode      = "customerCode"
	ColFullName          = "fullName"
	ColMobileNumber      = "mobileNumber"
	ColAlternateMobile   = "alternateMobile"
	ColEmail             = "email"
	ColAddress           = "address"
	ColCity              = "city"
	ColState             = "state"
	ColPincode           = "pincode"
	ColLoanAccountNumber = "loanAccountNumber"
	ColBankCode          = "bankCode"
	ColProductType       = "productType"
	ColPrincipalAmount   = "principalAmount"
	ColTotalOutstanding  = "totalOutstanding"
	ColDPD               = "dpd"
	ColBucket            = "bucket"
	ColDisbursementDate  = "disbursementDate"
	ColDueDate           = "dueDate"
	ColGeographyCode     = "geographyCode"
)

// TemplateColumns returns the upload template header, in order.
func TemplateColumns() []string {
	return []string{
		ColExternalCaseID,
		ColCustomerCode,
		ColFullName,
		ColMobileNumber,
		ColAlternateMobile,
		ColEmail,
		ColAddress,
		ColCity,
		ColState,
		ColPincode,
		ColLoanAccountNumber,
		ColBankCode,
		ColProductType,
		ColPrincipalAmount,
		ColTotalOutstanding,
		ColDPD,
		ColBucket,
		ColDisbursementDate,
		ColDueDate,
		ColGeographyCode,
	}
}

// Source is a lazy, finite, non-restartable sequence of upload rows.
// Next returns io.EOF after the last row. Any other error is fatal for
// the whole batch.
type Source interface {
	Next() (*domain.UploadRow, error)
	Close() error
}

// columnIndex maps template column names to their position in the
// file's header row.
type columnIndex map[string]int

// buildColumnIndex validates the header against the template and
// returns a lookup of column positions. A missing template column is a
// parse-fatal condition.
func buildColumnIndex(header []string) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, col := range TemplateColumns() {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header is missing required columns: %s", strings.Join(missing, ", "))
	}

	return idx, nil
}

// cell returns the value for a template column, or "" when the row is
// short. Values are NFC-normalized and stripped of enclosing whitespace.
func (ci columnIndex) cell(record []string, col string) string {
	i, ok := ci[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(norm.NFC.String(record[i]))
}

// toUploadRow maps one raw record onto the row model.
func (ci columnIndex) toUploadRow(rowNumber int, record []string) *domain.UploadRow {
	return &domain.UploadRow{
		RowNumber:         rowNumber,
		ExternalCaseID:    ci.cell(record, ColExternalCaseID),
		CustomerCode:      ci.cell(record, ColCustomerCode),
		FullName:          ci.cell(record, ColFullName),
		MobileNumber:      ci.cell(record, ColMobileNumber),
		AlternateMobile:   ci.cell(record, ColAlternateMobile),
		Email:             ci.cell(record, ColEmail),
		Address:           ci.cell(record, ColAddress),
		City:              ci.cell(record, ColCity),
		State:             ci.cell(record, ColState),
		Pincode:           ci.cell(record, ColPincode),
		LoanAccountNumber: ci.cell(record, ColLoanAccountNumber),
		BankCode:          ci.cell(record, ColBankCode),
		ProductType:       ci.cell(record, ColProductType),
		PrincipalAmount:   ci.cell(record, ColPrincipalAmount),
		TotalOutstanding:  ci.cell(record, ColTotalOutstanding),
		DPD:               ci.cell(record, ColDPD),
		Bucket:            ci.cell(record, ColBucket),
		DisbursementDate:  ci.cell(record, ColDisbursementDate),
		DueDate:           ci.cell(record, ColDueDate),
		GeographyCode:     ci.cell(record, ColGeographyCode),
	}
}
