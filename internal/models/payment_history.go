package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentHistoryType string
type PaymentHistoryStatus string

const (
	HistoryEarnings   PaymentHistoryType = "earnings"
	HistoryFees       PaymentHistoryType = "fees"
	HistoryWithdrawal PaymentHistoryType = "withdrawal"
	HistoryRefund     PaymentHistoryType = "refund"
)

const (
	HistoryPending   PaymentHistoryStatus = "pending"
	HistoryCompleted PaymentHistoryStatus = "completed"
)

// PaymentHistory is the per-user audit trail. The pending earnings row written
// at funding is completed in place on release rather than duplicated.
type PaymentHistory struct {
	ID            string               `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string               `gorm:"type:uuid;not null;index" json:"user_id"`
	GigID         string               `gorm:"type:uuid;not null;index" json:"gig_id"`
	ApplicationID string               `gorm:"type:uuid;index" json:"application_id"`
	PaymentID     string               `gorm:"type:uuid" json:"payment_id,omitempty"`
	Type          PaymentHistoryType   `gorm:"type:varchar(20);not null" json:"type"`
	Status        PaymentHistoryStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Amount        float64              `gorm:"not null" json:"amount"`
	Description   string               `gorm:"type:text" json:"description"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (PaymentHistory) TableName() string {
	return "payment_history"
}

func (h *PaymentHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	return nil
}
