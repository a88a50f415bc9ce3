package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TimeEntry is a record of billable work. It is never mutated by billing
// except for the InvoiceID/InvoicedAt consumption marker.
type TimeEntry struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
	UserID      uint            `gorm:"not null;index:idx_time_entries_owner_date,priority:1" json:"user_id"`
	ClientID    uint            `gorm:"not null;index" json:"client_id"`
	ProjectID   *uint           `gorm:"index" json:"project_id"`
	Project     *Project        `gorm:"foreignKey:ProjectID;constraint:OnDelete:RESTRICT" json:"project,omitempty"`
	Date        time.Time       `gorm:"type:date;not null;index:idx_time_entries_owner_date,priority:2" json:"date"`
	Hours       decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"hours"`
	HourlyRate  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"hourly_rate"`
	IsBillable  bool            `gorm:"default:true" json:"is_billable"`
	Description string          `gorm:"type:text;not null" json:"description"`
	InvoiceID   *uint           `gorm:"index" json:"invoice_id"`
	InvoicedAt  *time.Time      `json:"invoiced_at"`
}

// TableName overrides the table name
func (TimeEntry) TableName() string {
	return "time_entries"
}

// Amount is hours * hourly rate, unrounded.
func (t TimeEntry) Amount() decimal.Decimal {
	return t.Hours.Mul(t.HourlyRate)
}
