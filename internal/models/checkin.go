package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckIn rows are keyed by user and calendar date, so a second insert for
// the same day collides on the primary key.
type CheckIn struct {
	ID        string          `gorm:"type:varchar(60);primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Date      time.Time       `gorm:"index;not null" json:"date"`
	Reward    decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"reward"`
	Streak    int             `gorm:"not null" json:"streak"`
	CreatedAt time.Time       `json:"created_at"`
}

func CheckInID(userID uuid.UUID, day time.Time) string {
	return userID.String() + ":" + day.Format("2006-01-02")
}
