package models

import "time"

const SettingAutoReleaseDays = "completion_auto_release_days"

type PlatformSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedBy string    `gorm:"type:varchar(64)" json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PlatformSetting) TableName() string {
	return "platform_settings"
}
