package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Loan is keyed by the loan account number and owned by exactly one
// customer. A loan is created once per accepted row; a repeated account
// number is a duplicate condition, never an update.
type Loan struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	LoanAccountNumber string          `gorm:"type:varchar(100);not null;uniqueIndex:ux_loans_loan_account_number" json:"loan_account_number"`
	CustomerID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_loans_customer" json:"customer_id"`
	BankCode          string          `gorm:"type:varchar(50)" json:"bank_code,omitempty"`
	ProductType       string          `gorm:"type:varchar(100)" json:"product_type,omitempty"`
	PrincipalAmount   decimal.Decimal `gorm:"type:numeric(18,2)" json:"principal_amount"`
	TotalOutstanding  decimal.Decimal `gorm:"type:numeric(18,2)" json:"total_outstanding"`
	DPD               int             `gorm:"default:0" json:"dpd"`
	Bucket            string          `gorm:"type:varchar(50)" json:"bucket,omitempty"`
	DisbursementDate  *time.Time      `json:"disbursement_date,omitempty"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Customer *Customer `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

// TableName specifies the table name for GORM
func (Loan) TableName() string {
	return "loans"
}

// BeforeCreate GORM hook
func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
