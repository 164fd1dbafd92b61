package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultCommissionPercent = 10.0
	DefaultAutoReleaseDays   = 7
)

// FeeConfiguration is versioned; at most one row is active and only the active
// row is ever used for new calculations.
type FeeConfiguration struct {
	ID                        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Version                   int       `gorm:"not null;uniqueIndex" json:"version"`
	PlatformCommissionPercent float64   `gorm:"not null" json:"platform_commission_percent"`
	MinGigAmount              float64   `gorm:"not null;default:0" json:"min_gig_amount"`
	MaxGigAmount              float64   `gorm:"not null;default:0" json:"max_gig_amount"` // 0 means no upper bound
	IsActive                  bool      `gorm:"not null;default:false" json:"is_active"`
	CreatedBy                 string    `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Notes                     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt                 time.Time `json:"created_at"`
}

func (FeeConfiguration) TableName() string {
	return "fee_configurations"
}

func (f *FeeConfiguration) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

func DefaultFeeConfiguration() FeeConfiguration {
	return FeeConfiguration{
		PlatformCommissionPercent: DefaultCommissionPercent,
		IsActive:                  true,
		CreatedBy:                 "system",
	}
}

// AllowsAmount checks a gig amount against the configured bounds.
func (f FeeConfiguration) AllowsAmount(amount float64) bool {
	if amount < f.MinGigAmount {
		return false
	}
	return f.MaxGigAmount <= 0 || amount <= f.MaxGigAmount
}
