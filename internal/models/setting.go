package models

import (
	"time"

	"gorm.io/datatypes"
)

const SettingReferral = "referral"

type Setting struct {
	Key       string         `gorm:"type:varchar(60);primaryKey" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}
