package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is keyed by the business customer code. Intake uses
// get-or-create semantics: a re-matched customer is reused as-is and
// never overwritten by later uploads.
type Customer struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CustomerCode    string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_customers_customer_code" json:"customer_code"`
	FullName        string    `gorm:"type:varchar(255);not null" json:"full_name"`
	MobileNumber    string    `gorm:"type:varchar(20)" json:"mobile_number,omitempty"`
	AlternateMobile string    `gorm:"type:varchar(20)" json:"alternate_mobile,omitempty"`
	Email           string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Address         string    `gorm:"type:text" json:"address,omitempty"`
	City            string    `gorm:"type:varchar(100)" json:"city,omitempty"`
	State           string    `gorm:"type:varchar(100)" json:"state,omitempty"`
	Pincode         string    `gorm:"type:varchar(10)" json:"pincode,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Loans []Loan `gorm:"foreignKey:CustomerID" json:"loans,omitempty"`
}

// TableName specifies the table name for GORM
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate GORM hook
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
