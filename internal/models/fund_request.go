package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FundKind string

const (
	FundRecharge   FundKind = "recharge"
	FundWithdrawal FundKind = "withdrawal"
)

// TransactionType is the ledger entry type booked for this kind of request.
func (k FundKind) TransactionType() TransactionType {
	if k == FundWithdrawal {
		return TrxWithdrawal
	}
	return TrxRecharge
}

type FundStatus string

const (
	FundStatusPending   FundStatus = "pending"
	FundStatusCompleted FundStatus = "completed"
	FundStatusRejected  FundStatus = "rejected"
)

// FundRequest is a recharge or withdrawal waiting for an administrator.
type FundRequest struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Kind   FundKind  `gorm:"type:varchar(20);index;not null" json:"kind"`

	Amount  decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	Method  string          `gorm:"type:varchar(50)" json:"method"`
	Details string          `gorm:"type:text" json:"details,omitempty"`

	Status           FundStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	RejectionReason  string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	GatewayReference string     `gorm:"type:varchar(60);index" json:"gateway_reference,omitempty"`
	CheckoutURL      string     `gorm:"type:text" json:"checkout_url,omitempty"`

	RequestedAt time.Time  `gorm:"index" json:"requested_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  *uuid.UUID `gorm:"type:uuid" json:"resolved_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
