package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is the invoicing owner. Every billing row is scoped by UserID.
type User struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	Email             string          `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	PasswordHash      string          `gorm:"size:255;not null" json:"-"`
	Role              string          `gorm:"size:20;default:'user'" json:"role"` // admin, user
	IsActive          bool            `gorm:"default:true" json:"is_active"`
	DefaultHourlyRate decimal.Decimal `gorm:"type:decimal(10,2);default:0" json:"default_hourly_rate"`
	DefaultCurrency   string          `gorm:"size:3;default:'USD'" json:"default_currency"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}
