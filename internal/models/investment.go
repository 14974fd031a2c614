package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvestmentStatus string

const (
	InvestmentStatusActive    InvestmentStatus = "active"
	InvestmentStatusCompleted InvestmentStatus = "completed"
)

type Investment struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;index;not null" json:"product_id"`
	ProductName string    `gorm:"not null" json:"product_name"`
	Quantity    int       `gorm:"not null" json:"quantity"`

	Amount      decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	DailyProfit decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"daily_profit"`
	TotalIncome decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"total_income"`
	Days        int             `gorm:"not null" json:"days"`

	StartDate time.Time        `gorm:"index;not null" json:"start_date"`
	EndDate   time.Time        `gorm:"not null" json:"end_date"`
	Status    InvestmentStatus `gorm:"type:varchar(20);index;not null" json:"status"`

	ProfitPaid     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"profit_paid"`
	LastProfitDate *time.Time      `json:"last_profit_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// OwnerName is filled for admin listings only.
	OwnerName string `gorm:"-" json:"owner_name,omitempty"`
}

// Remaining is what is still payable before the position reaches its total income.
func (i *Investment) Remaining() decimal.Decimal {
	r := i.TotalIncome.Sub(i.ProfitPaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// AccruedSince reports whether a profit was already booked at or after dayStart.
func (i *Investment) AccruedSince(dayStart time.Time) bool {
	return i.LastProfitDate != nil && !i.LastProfitDate.Before(dayStart)
}
