package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApplicationStatus string
type PaymentStatus string
type CompletionResolution string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationAccepted  ApplicationStatus = "accepted"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
	ApplicationFunded    ApplicationStatus = "funded"
	ApplicationCompleted ApplicationStatus = "completed"
)

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentInEscrow PaymentStatus = "in_escrow"
	PaymentReleased PaymentStatus = "released"
)

const (
	ResolutionApproved CompletionResolution = "approved"
	ResolutionRejected CompletionResolution = "rejected"
)

const CompletionRequestedByWorker = "worker"

// AutoReleaseRetryAfter is how long the sweep leaves an application alone
// after a failed auto-release attempt.
const AutoReleaseRetryAfter = time.Hour

type Application struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	GigID         string            `gorm:"type:uuid;not null;index" json:"gig_id"`
	ApplicantID   string            `gorm:"type:uuid;not null;index" json:"applicant_id"`
	EmployerID    string            `gorm:"type:uuid;not null;index" json:"employer_id"`
	CoverNote     string            `gorm:"type:text" json:"cover_note,omitempty"`
	ProposedRate  float64           `gorm:"not null;default:0" json:"proposed_rate"`
	AgreedRate    float64           `gorm:"not null;default:0" json:"agreed_rate"`
	PaymentID     *string           `gorm:"type:uuid" json:"payment_id,omitempty"`
	PaymentStatus PaymentStatus     `gorm:"type:varchar(20);not null;default:'unpaid'" json:"payment_status"`
	Status        ApplicationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	CompletionRequestedAt        *time.Time            `json:"completion_requested_at,omitempty"`
	CompletionRequestedBy        *string               `gorm:"type:varchar(20)" json:"completion_requested_by,omitempty"`
	CompletionAutoReleaseAt      *time.Time            `gorm:"index" json:"completion_auto_release_at,omitempty"`
	CompletionDisputedAt         *time.Time            `json:"completion_disputed_at,omitempty"`
	CompletionDisputeReason      *string               `gorm:"type:text" json:"completion_dispute_reason,omitempty"`
	CompletionDisputeEvidenceURL *string               `gorm:"type:text" json:"completion_dispute_evidence_url,omitempty"`
	CompletionResolvedAt         *time.Time            `json:"completion_resolved_at,omitempty"`
	CompletionResolvedBy         *string               `gorm:"type:uuid" json:"completion_resolved_by,omitempty"`
	CompletionResolution         *CompletionResolution `gorm:"type:varchar(20)" json:"completion_resolution,omitempty"`
	CompletionResolutionNotes    *string               `gorm:"type:text" json:"completion_resolution_notes,omitempty"`
	AutoReleaseFailedAt          *time.Time            `json:"auto_release_failed_at,omitempty"`

	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Application) TableName() string {
	return "applications"
}

func (a *Application) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// HoldsGig reports whether the application occupies the gig's single worker slot.
func (a Application) HoldsGig() bool {
	return a.Status == ApplicationAccepted || a.Status == ApplicationFunded || a.Status == ApplicationCompleted
}

func (a Application) HasCompletionRequest() bool {
	return a.CompletionRequestedAt != nil
}

func (a Application) IsDisputed() bool {
	return a.CompletionDisputedAt != nil && a.CompletionResolvedAt == nil
}

// AutoReleaseDue reports whether the undisputed completion request has timed out at now.
func (a Application) AutoReleaseDue(now time.Time) bool {
	return a.Status == ApplicationFunded &&
		a.CompletionRequestedAt != nil &&
		a.CompletionDisputedAt == nil &&
		a.CompletionAutoReleaseAt != nil &&
		!now.Before(*a.CompletionAutoReleaseAt)
}

// AutoReleaseBackingOff reports whether the last failed auto-release attempt
// is too recent to retry at now.
func (a Application) AutoReleaseBackingOff(now time.Time) bool {
	return a.AutoReleaseFailedAt != nil && now.Before(a.AutoReleaseFailedAt.Add(AutoReleaseRetryAfter))
}

type ApplicationPatch struct {
	Status        Field[ApplicationStatus]
	PaymentStatus Field[PaymentStatus]
	PaymentID     Field[string]
	AgreedRate    Field[float64]

	CompletionRequestedAt        Field[time.Time]
	CompletionRequestedBy        Field[string]
	CompletionAutoReleaseAt      Field[time.Time]
	CompletionDisputedAt         Field[time.Time]
	CompletionDisputeReason      Field[string]
	CompletionDisputeEvidenceURL Field[string]
	CompletionResolvedAt         Field[time.Time]
	CompletionResolvedBy         Field[string]
	CompletionResolution         Field[CompletionResolution]
	CompletionResolutionNotes    Field[string]
	AutoReleaseFailedAt          Field[time.Time]
	CompletedAt                  Field[time.Time]
}

func (p ApplicationPatch) Apply(a *Application) {
	applyValue(p.Status, &a.Status)
	applyValue(p.PaymentStatus, &a.PaymentStatus)
	applyPointer(p.PaymentID, &a.PaymentID)
	applyValue(p.AgreedRate, &a.AgreedRate)
	applyPointer(p.CompletionRequestedAt, &a.CompletionRequestedAt)
	applyPointer(p.CompletionRequestedBy, &a.CompletionRequestedBy)
	applyPointer(p.CompletionAutoReleaseAt, &a.CompletionAutoReleaseAt)
	applyPointer(p.CompletionDisputedAt, &a.CompletionDisputedAt)
	applyPointer(p.CompletionDisputeReason, &a.CompletionDisputeReason)
	applyPointer(p.CompletionDisputeEvidenceURL, &a.CompletionDisputeEvidenceURL)
	applyPointer(p.CompletionResolvedAt, &a.CompletionResolvedAt)
	applyPointer(p.CompletionResolvedBy, &a.CompletionResolvedBy)
	applyPointer(p.CompletionResolution, &a.CompletionResolution)
	applyPointer(p.CompletionResolutionNotes, &a.CompletionResolutionNotes)
	applyPointer(p.AutoReleaseFailedAt, &a.AutoReleaseFailedAt)
	applyPointer(p.CompletedAt, &a.CompletedAt)
}

func (p ApplicationPatch) Columns() map[string]any {
	cols := map[string]any{}
	putColumn(cols, "status", p.Status)
	putColumn(cols, "payment_status", p.PaymentStatus)
	putColumn(cols, "payment_id", p.PaymentID)
	putColumn(cols, "agreed_rate", p.AgreedRate)
	putColumn(cols, "completion_requested_at", p.CompletionRequestedAt)
	putColumn(cols, "completion_requested_by", p.CompletionRequestedBy)
	putColumn(cols, "completion_auto_release_at", p.CompletionAutoReleaseAt)
	putColumn(cols, "completion_disputed_at", p.CompletionDisputedAt)
	putColumn(cols, "completion_dispute_reason", p.CompletionDisputeReason)
	putColumn(cols, "completion_dispute_evidence_url", p.CompletionDisputeEvidenceURL)
	putColumn(cols, "completion_resolved_at", p.CompletionResolvedAt)
	putColumn(cols, "completion_resolved_by", p.CompletionResolvedBy)
	putColumn(cols, "completion_resolution", p.CompletionResolution)
	putColumn(cols, "completion_resolution_notes", p.CompletionResolutionNotes)
	putColumn(cols, "auto_release_failed_at", p.AutoReleaseFailedAt)
	putColumn(cols, "completed_at", p.CompletedAt)
	return cols
}
