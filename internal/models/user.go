package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleWorker   = "worker"
	RoleEmployer = "employer"
	RoleAdmin    = "admin"
)

type User struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	FullName       string         `gorm:"not null" json:"full_name"`
	Email          string         `gorm:"uniqueIndex;not null" json:"email"`
	Role           string         `gorm:"type:varchar(20);default:'worker'" json:"role"`
	PendingBalance float64        `gorm:"not null;default:0" json:"pending_balance"`
	WalletBalance  float64        `gorm:"not null;default:0" json:"wallet_balance"`
	TotalEarnings  float64        `gorm:"not null;default:0" json:"total_earnings"`
	CompletedGigs  int            `gorm:"not null;default:0" json:"completed_gigs"`
	IsSuspended    bool           `gorm:"default:false" json:"is_suspended"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate hook to set id and default role
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleWorker
	}
	return nil
}

// IsAdmin checks if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BalanceDelta is a set of relative increments applied to one user's ledger.
type BalanceDelta struct {
	PendingBalance float64
	WalletBalance  float64
	TotalEarnings  float64
	CompletedGigs  int
}

func (d BalanceDelta) IsZero() bool {
	return d.PendingBalance == 0 && d.WalletBalance == 0 && d.TotalEarnings == 0 && d.CompletedGigs == 0
}

func (d BalanceDelta) Apply(u *User) {
	u.PendingBalance += d.PendingBalance
	u.WalletBalance += d.WalletBalance
	u.TotalEarnings += d.TotalEarnings
	u.CompletedGigs += d.CompletedGigs
}
