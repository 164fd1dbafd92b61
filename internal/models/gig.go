package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GigStatus string

const (
	GigOpen       GigStatus = "open"
	GigInProgress GigStatus = "in_progress"
	GigCompleted  GigStatus = "completed"
	GigCancelled  GigStatus = "cancelled"
)

type Gig struct {
	ID           string         `gorm:"type:uuid;primaryKey" json:"id"`
	EmployerID   string         `gorm:"type:uuid;not null;index" json:"employer_id"`
	Title        string         `gorm:"not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	EscrowAmount float64        `gorm:"not null;default:0" json:"escrow_amount"`
	AssignedTo   *string        `gorm:"type:uuid;index" json:"assigned_to,omitempty"`
	Status       GigStatus      `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Gig) TableName() string {
	return "gigs"
}

func (g *Gig) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// IsBrowsable reports whether workers can still apply. Derived on read so that
// status and assignment never have to be kept in sync by hand.
func (g Gig) IsBrowsable() bool {
	return g.Status == GigOpen && g.AssignedTo == nil
}

type GigPatch struct {
	Status       Field[GigStatus]
	EscrowAmount Field[float64]
	AssignedTo   Field[string]
}

func (p GigPatch) Apply(g *Gig) {
	applyValue(p.Status, &g.Status)
	applyValue(p.EscrowAmount, &g.EscrowAmount)
	applyPointer(p.AssignedTo, &g.AssignedTo)
}

func (p GigPatch) Columns() map[string]any {
	cols := map[string]any{}
	putColumn(cols, "status", p.Status)
	putColumn(cols, "escrow_amount", p.EscrowAmount)
	putColumn(cols, "assigned_to", p.AssignedTo)
	return cols
}
