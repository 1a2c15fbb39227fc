package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Case statuses
const (
	CaseStatusUnallocated = "UNALLOCATED"
	CaseStatusAllocated   = "ALLOCATED"
	CaseStatusClosed      = "CLOSED"
)

// Case is the unit of collections work. It references exactly one loan,
// starts UNALLOCATED, and is tagged with the batch that created it.
type Case struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CaseNumber     string    `gorm:"type:varchar(50);not null;uniqueIndex:ux_cases_case_number" json:"case_number"`
	ExternalCaseID string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_cases_external_case_id" json:"external_case_id"`
	LoanID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_cases_loan" json:"loan_id"`
	BatchID        uuid.UUID `gorm:"type:uuid;not null;index:idx_cases_batch" json:"batch_id"`
	Status         string    `gorm:"type:varchar(50);not null;default:'UNALLOCATED';index:idx_cases_status" json:"status"`
	GeographyCode  string    `gorm:"type:varchar(50)" json:"geography_code,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Loan *Loan `gorm:"foreignKey:LoanID" json:"loan,omitempty"`
}

// TableName specifies the table name for GORM
func (Case) TableName() string {
	return "cases"
}

// BeforeCreate GORM hook
func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
