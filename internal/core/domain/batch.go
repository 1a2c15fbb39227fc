package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Batch statuses
const (
	BatchStatusPending    = "PENDING"
	BatchStatusProcessing = "PROCESSING"
	BatchStatusCompleted  = "COMPLETED"
	BatchStatusFailed     = "FAILED"
)

// Batch represents one upload (or re-upload) submission and its lifecycle record.
// Batches are never deleted; they are the audit trail of every intake run.
type Batch struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OriginalFilename string     `gorm:"type:varchar(500);not null" json:"original_filename"`
	FilePath         string     `gorm:"type:text" json:"-"`
	UploadedBy       string     `gorm:"type:varchar(255)" json:"uploaded_by"`
	Status           string     `gorm:"type:varchar(50);not null;default:'PENDING';index:idx_batches_status" json:"status"`
	TotalRows        int        `gorm:"default:0" json:"total_rows"`
	ValidRows        int        `gorm:"default:0" json:"valid_rows"`
	InvalidRows      int        `gorm:"default:0" json:"invalid_rows"`
	DuplicateRows    int        `gorm:"default:0" json:"duplicate_rows"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	// Relations
	Errors []BatchError `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE" json:"errors,omitempty"`
	Cases  []Case       `gorm:"foreignKey:BatchID" json:"cases,omitempty"`
}

// TableName specifies the table name for GORM
func (Batch) TableName() string {
	return "batches"
}

// BeforeCreate GORM hook - called before creating a record
func (b *Batch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// IsTerminal reports whether the batch has reached a final status
func (b *Batch) IsTerminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed
}

// ValidStatuses returns list of valid batch statuses
func ValidStatuses() []string {
	return []string{
		BatchStatusPending,
		BatchStatusProcessing,
		BatchStatusCompleted,
		BatchStatusFailed,
	}
}

// IsValidStatus checks if a status is valid
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
