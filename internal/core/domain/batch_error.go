package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchError is one entry in the error ledger: a durable record of a
// rejected row. Entries are written in their own unit of work and are
// immutable once created.
type BatchError struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	BatchID        uuid.UUID `gorm:"type:uuid;not null;index:idx_batch_errors_batch" json:"batch_id"`
	RowNumber      int       `gorm:"not null" json:"row_number"`
	ExternalCaseID string    `gorm:"type:varchar(100)" json:"external_case_id,omitempty"`
	ErrorType      ErrorType `gorm:"type:varchar(50);not null;index:idx_batch_errors_type" json:"error_type"`
	Message        string    `gorm:"type:text;not null" json:"message"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Batch *Batch `gorm:"foreignKey:BatchID" json:"batch,omitempty"`
}

// TableName specifies the table name for GORM
func (BatchError) TableName() string {
	return "batch_errors"
}

// BeforeCreate GORM hook
func (e *BatchError) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
