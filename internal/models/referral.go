package models

import (
	"time"

	"github.com/google/uuid"
)

type ReferralStatus string

const (
	ReferralStatusPending  ReferralStatus = "pending"
	ReferralStatusCredited ReferralStatus = "credited"
)

// ReferralLink records who referred whom at registration. It turns credited
// once the referrer earns the first bonus from the referred user.
type ReferralLink struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ReferrerID        uuid.UUID      `gorm:"type:uuid;index;not null" json:"referrer_id"`
	ReferredID        uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"referred_id"`
	Status            ReferralStatus `gorm:"type:varchar(20);not null" json:"status"`
	FirstInvestmentID *uuid.UUID     `gorm:"type:uuid" json:"first_investment_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CreditedAt        *time.Time     `json:"credited_at,omitempty"`
}
