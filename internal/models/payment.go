package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Payment struct {
	ID                    string        `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID         string        `gorm:"type:uuid;not null;uniqueIndex" json:"application_id"`
	GigID                 string        `gorm:"type:uuid;not null;index" json:"gig_id"`
	EmployerID            string        `gorm:"type:uuid;not null;index" json:"employer_id"`
	WorkerID              string        `gorm:"type:uuid;not null;index" json:"worker_id"`
	Amount                float64       `gorm:"not null" json:"amount"`
	Currency              string        `gorm:"type:varchar(3);not null;default:'ZAR'" json:"currency"`
	Provider              string        `gorm:"type:varchar(30);not null;default:'tradesafe'" json:"provider"`
	ProviderTransactionID string        `gorm:"not null;index" json:"provider_transaction_id"`
	ProviderAllocationID  string        `gorm:"not null" json:"provider_allocation_id"`
	Status                PaymentStatus `gorm:"type:varchar(20);not null;default:'in_escrow'" json:"status"`
	ReleasedAt            *time.Time    `json:"released_at,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
