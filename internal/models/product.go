package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Investments snapshot its economics at purchase time,
// so editing a product never changes existing positions.
type Product struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"not null" json:"name"`
	ImageURL string    `gorm:"type:text" json:"image_url"`

	Price       decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"price"`
	DailyProfit decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"daily_profit"`
	TotalIncome decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_income"`
	Days        int             `gorm:"not null" json:"days"`

	Active    bool       `gorm:"not null;default:true;index" json:"active"`
	CreatedBy *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `gorm:"type:uuid" json:"updated_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
