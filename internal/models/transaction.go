package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TrxInvestment      TransactionType = "investment"
	TrxProfit          TransactionType = "profit"
	TrxReferralBonus   TransactionType = "referral_bonus"
	TrxRecharge        TransactionType = "recharge"
	TrxWithdrawal      TransactionType = "withdrawal"
	TrxCheckinBonus    TransactionType = "checkin_bonus"
	TrxAdminAdjustment TransactionType = "admin_adjustment"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRejected  TransactionStatus = "rejected"
)

type ReferenceType string

const (
	RefInvestment  ReferenceType = "investment"
	RefFundRequest ReferenceType = "fund_request"
	RefCheckIn     ReferenceType = "checkin"
)

// Transaction is one append-only ledger entry. Amount is signed: credits are
// positive, debits negative. A pending entry is resolved exactly once.
type Transaction struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Type   TransactionType `gorm:"type:varchar(30);index;not null" json:"type"`

	Amount       decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	BalanceAfter *decimal.Decimal `gorm:"type:numeric(20,2)" json:"balance_after,omitempty"`

	Status      TransactionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	Description string            `gorm:"type:text" json:"description"`

	ReferenceType  ReferenceType `gorm:"type:varchar(30)" json:"reference_type,omitempty"`
	ReferenceID    string        `gorm:"type:varchar(80);index" json:"reference_id,omitempty"`
	IdempotencyKey *string       `gorm:"type:varchar(120);uniqueIndex" json:"-"`
	ReferenceCode  string        `gorm:"type:char(26);uniqueIndex" json:"reference_code"`
	ActorID        *uuid.UUID    `gorm:"type:uuid" json:"actor_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
