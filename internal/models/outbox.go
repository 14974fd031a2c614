package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TaskKind string

const (
	TaskReferralBonus TaskKind = "referral_bonus"
	TaskLoginActivity TaskKind = "login_activity"
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusDead    TaskStatus = "dead"
)

// OutboxTask is a follow-up job written next to the primary change and run later
// by the outbox worker.
type OutboxTask struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind      TaskKind       `gorm:"type:varchar(30);not null" json:"kind"`
	Payload   datatypes.JSON `json:"payload"`
	Status    TaskStatus     `gorm:"type:varchar(20);index;not null" json:"status"`
	Attempts  int            `gorm:"not null;default:0" json:"attempts"`
	NextRunAt time.Time      `gorm:"index;not null" json:"next_run_at"`
	LastError string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type LoginRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	IP        string    `gorm:"type:varchar(64)" json:"ip"`
	City      string    `json:"city"`
	Region    string    `json:"region"`
	Country   string    `json:"country"`
	Device    string    `gorm:"type:text" json:"device"`
	CreatedAt time.Time `json:"created_at"`
}
