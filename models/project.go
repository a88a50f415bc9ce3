package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectOnHold    = "on_hold"
	ProjectCancelled = "cancelled"
)

type Project struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	ClientID         uint           `gorm:"not null;index" json:"client_id"`
	Client           *Client        `gorm:"foreignKey:ClientID;constraint:OnDelete:RESTRICT" json:"client,omitempty"`
	Name             string         `gorm:"size:255;not null" json:"name"`
	Status           string         `gorm:"size:20;default:'active'" json:"status"` // active, completed, on_hold, cancelled
	AutoInvoice      bool           `gorm:"default:false" json:"auto_invoice"`
	InvoiceFrequency string         `gorm:"size:20;default:'monthly'" json:"invoice_frequency"` // weekly, monthly, quarterly, on_completion
	NextInvoiceDate  *time.Time     `gorm:"type:date;index" json:"next_invoice_date"`
}

// TableName overrides the table name
func (Project) TableName() string {
	return "projects"
}
