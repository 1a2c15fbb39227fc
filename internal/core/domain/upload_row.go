package domain

// UploadRow is one data line of an uploaded file, tagged with its
// 1-based source row number (header excluded). Values are carried
// verbatim apart from enclosing whitespace; interpreting them is the
// validation engine's job. Rows are never mutated after creation.
type UploadRow struct {
	RowNumber int

	ExternalCaseID    string
	CustomerCode      string
	FullName          string
	MobileNumber      string
	AlternateMobile   string
	Email             string
	Address           string
	City              string
	State             string
	Pincode           string
	LoanAccountNumber string
	BankCode          string
	ProductType       string
	PrincipalAmount   string
	TotalOutstanding  string
	DPD               string
	Bucket            string
	DisbursementDate  string
	DueDate           string
	GeographyCode     string
}

// ValidationResult holds the outcome of validating one UploadRow.
// Messages accumulate: every violation on the row is reported, not just
// the first.
type ValidationResult struct {
	Valid  bool
	Errors []string
}
