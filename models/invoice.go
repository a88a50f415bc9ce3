package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceOverdue   = "overdue"
	InvoiceCancelled = "cancelled"
)

type Invoice struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uint           `gorm:"not null;index;uniqueIndex:ux_invoices_owner_year_seq,priority:1;uniqueIndex:ux_invoices_owner_number,priority:1" json:"user_id"`
	ClientID  uint           `gorm:"not null;index" json:"client_id"`
	Client    *Client        `gorm:"foreignKey:ClientID;constraint:OnDelete:RESTRICT" json:"client,omitempty"`
	ProjectID *uint          `gorm:"index" json:"project_id"`
	Project   *Project       `gorm:"foreignKey:ProjectID;constraint:OnDelete:RESTRICT" json:"project,omitempty"`

	Number     string `gorm:"size:50;not null;uniqueIndex:ux_invoices_owner_number,priority:2" json:"invoice_number"`
	NumberYear int    `gorm:"not null;uniqueIndex:ux_invoices_owner_year_seq,priority:2" json:"-"`
	NumberSeq  int    `gorm:"not null;uniqueIndex:ux_invoices_owner_year_seq,priority:3" json:"-"`

	IssueDate time.Time `gorm:"type:date;not null" json:"issue_date"`
	DueDate   time.Time `gorm:"type:date;not null;index" json:"due_date"`
	Status    string    `gorm:"size:20;default:'draft';index" json:"status"` // draft, sent, paid, overdue, cancelled

	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"tax_rate"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax_amount"`
	DiscountRate   decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"discount_rate"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount_amount"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_amount"`
	Currency       string          `gorm:"size:3;default:'USD'" json:"currency"`

	Notes           string `gorm:"type:text" json:"notes"`
	TermsConditions string `gorm:"type:text" json:"terms_conditions"`

	Document            []byte     `json:"-"`
	DocumentContentType string     `gorm:"size:100" json:"document_content_type,omitempty"`
	RenderedAt          *time.Time `json:"rendered_at,omitempty"`

	PaidDate         *time.Time `gorm:"type:date" json:"paid_date"`
	PaymentMethod    string     `gorm:"size:50" json:"payment_method"`
	PaymentReference string     `gorm:"size:255" json:"payment_reference"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

// TableName overrides the table name
func (Invoice) TableName() string {
	return "invoices"
}

// IsOverdue is the derived overdue predicate; it does not look at the stored
// overdue status.
func (i *Invoice) IsOverdue(today time.Time) bool {
	return i.Status == InvoiceSent && i.DueDate.Before(today)
}

// DaysOverdue returns 0 unless the invoice is derived-overdue.
func (i *Invoice) DaysOverdue(today time.Time) int {
	if !i.IsOverdue(today) {
		return 0
	}
	return int(today.Sub(i.DueDate).Hours() / 24)
}

type InvoiceItem struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
	InvoiceID       uint            `gorm:"not null;index" json:"invoice_id"`
	TimeEntryID     *uint           `gorm:"index" json:"time_entry_id"`
	Description     string          `gorm:"type:text;not null" json:"description"`
	Quantity        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:1" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	Total           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`
	TotalOverridden bool            `gorm:"default:false" json:"total_overridden"`
}

// TableName overrides the table name
func (InvoiceItem) TableName() string {
	return "invoice_items"
}
