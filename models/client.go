package models

import (
	"time"

	"gorm.io/gorm"
)

type Client struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	UserID             uint           `gorm:"not null;index" json:"user_id"`
	Name               string         `gorm:"size:255;not null" json:"name"`
	Email              string         `gorm:"size:255;not null" json:"email"`
	CompanyName        string         `gorm:"size:255" json:"company_name"`
	Address            string         `gorm:"type:text" json:"address"`
	Currency           string         `gorm:"size:3;default:'USD'" json:"currency"`
	PaymentTermsDays   int            `gorm:"default:30" json:"payment_terms_days"`
	IsActive           bool           `gorm:"default:true" json:"is_active"`
	RecurringInvoice   bool           `gorm:"default:false" json:"recurring_invoice"`
	RecurringFrequency string         `gorm:"size:20;default:'monthly'" json:"recurring_frequency"` // weekly, monthly, quarterly
	NextInvoiceDate    *time.Time     `gorm:"type:date;index" json:"next_invoice_date"`
}

// TableName overrides the table name
func (Client) TableName() string {
	return "clients"
}
