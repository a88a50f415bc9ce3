package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	IntentPending   = "pending"
	IntentSucceeded = "succeeded"
	IntentFailed    = "failed"
)

// PaymentIntent is the local record of a provider-side payment intent.
type PaymentIntent struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
	UserID       uint            `gorm:"not null;index" json:"user_id"`
	InvoiceID    uint            `gorm:"not null;index" json:"invoice_id"`
	ProviderID   string          `gorm:"uniqueIndex;size:255;not null" json:"provider_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency     string          `gorm:"size:3;not null" json:"currency"`
	Status       string          `gorm:"size:50;default:'pending'" json:"status"` // provider status, or succeeded/failed after reconciliation
	ClientSecret string          `gorm:"size:255" json:"-"`
}

// TableName overrides the table name
func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// PaymentEvent is an inbound provider notification, deduplicated on ExternalID.
type PaymentEvent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ExternalID   string     `gorm:"uniqueIndex;size:255;not null" json:"external_id"`
	EventType    string     `gorm:"size:100;not null;index" json:"event_type"`
	Reference    string     `gorm:"size:255;index" json:"reference"`
	Payload      string     `gorm:"type:text;not null" json:"payload"`
	Processed    bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
}

// TableName overrides the table name
func (PaymentEvent) TableName() string {
	return "payment_events"
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Client{}, &Project{}, &TimeEntry{},
		&Invoice{}, &InvoiceItem{}, &PaymentIntent{}, &PaymentEvent{},
	}
}
