package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsAdmin reports whether the role may use the admin surface.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

// internal/models/user.go
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone string    `gorm:"type:varchar(30)" json:"phone"`

	Password string `gorm:"not null" json:"-"`

	// Wallet is only ever written inside a store transaction.
	Wallet          decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"wallet"`
	TotalInvestment decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_investment"`
	TotalEarnings   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_earnings"`

	ReferralCode string     `gorm:"type:varchar(16);uniqueIndex;not null" json:"referral_code"`
	ReferredBy   *uuid.UUID `gorm:"type:uuid;index" json:"referred_by,omitempty"`

	CheckInStreak int        `gorm:"not null;default:0" json:"check_in_streak"`
	LastCheckIn   *time.Time `json:"last_check_in,omitempty"`
	LastLogin     *time.Time `json:"last_login,omitempty"`

	Role   Role       `gorm:"type:varchar(20);not null;index" json:"role"`
	Status UserStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`

	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy *uuid.UUID `gorm:"type:uuid" json:"updated_by,omitempty"`
}

// DisplayName is what the admin listings show for an owner.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserDelta is a set of atomic increments applied to a user row.
type UserDelta struct {
	Wallet          decimal.Decimal
	TotalInvestment decimal.Decimal
	TotalEarnings   decimal.Decimal
	CheckInStreak   int
	LastCheckIn     *time.Time
}
