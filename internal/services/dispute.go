package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

type DisputeResolution struct {
	ApplicationID string                      `json:"application_id"`
	Resolution    models.CompletionResolution `json:"resolution"`
	Release       *ReleaseResult              `json:"release,omitempty"`
	Message       string                      `json:"message"`
}

// DisputeMediator is the admin override for disputed completions.
type DisputeMediator struct {
	deps    Dependencies
	release *EscrowReleaseService
}

func NewDisputeMediator(deps Dependencies, release *EscrowReleaseService) *DisputeMediator {
	deps = deps.withDefaults()
	if release == nil {
		release = NewEscrowReleaseService(deps)
	}
	return &DisputeMediator{deps: deps, release: release}
}

func (m *DisputeMediator) requireAdmin(ctx context.Context, adminID string) error {
	admin, err := m.deps.Store.GetUser(ctx, adminID)
	if err != nil {
		return fmt.Errorf("load admin %s: %w", adminID, err)
	}
	if !admin.IsAdmin() {
		return fmt.Errorf("%w: admin access required", ErrUnauthorized)
	}
	return nil
}

// ResolveDisputeInFavorOfWorker releases the escrow through the same
// transactional path as an employer approval and records the resolution.
func (m *DisputeMediator) ResolveDisputeInFavorOfWorker(ctx context.Context, applicationID, adminID, notes string) (*DisputeResolution, error) {
	if err := m.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	result, err := m.release.release(ctx, releaseRequest{
		applicationID: applicationID,
		actorID:       adminID,
		trigger:       TriggerDisputeResolution,
		notes:         notes,
	})
	if err != nil {
		return nil, err
	}
	return &DisputeResolution{
		ApplicationID: applicationID,
		Resolution:    models.ResolutionApproved,
		Release:       result,
		Message:       "Dispute resolved in favour of the worker. " + result.Message,
	}, nil
}

// ResolveDisputeInFavorOfEmployer keeps the escrow held and reopens the
// completion cycle so the worker can request completion again.
func (m *DisputeMediator) ResolveDisputeInFavorOfEmployer(ctx context.Context, applicationID, adminID, notes string) (*DisputeResolution, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, fmt.Errorf("%w: resolution notes are required when ruling for the employer", ErrValidation)
	}
	if err := m.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	var (
		app models.Application
		gig models.Gig
	)
	err := m.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", applicationID, err)
		}
		if current.CompletionResolvedAt != nil {
			return fmt.Errorf("%w: resolved on %s", ErrAlreadyResolved, current.CompletionResolvedAt.Format(time.RFC3339))
		}
		if !current.IsDisputed() {
			return fmt.Errorf("%w: application %s has no open dispute", ErrNoActiveDispute, current.ID)
		}
		if current.Status != models.ApplicationFunded {
			return fmt.Errorf("%w: application is %s, expected funded", ErrInvalidState, current.Status)
		}
		currentGig, err := tx.GetGig(ctx, current.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", current.GigID, err)
		}

		patch := models.ApplicationPatch{
			CompletionRequestedAt:        models.Clear[time.Time](),
			CompletionRequestedBy:        models.Clear[string](),
			CompletionAutoReleaseAt:      models.Clear[time.Time](),
			CompletionDisputedAt:         models.Clear[time.Time](),
			CompletionDisputeReason:      models.Clear[string](),
			CompletionDisputeEvidenceURL: models.Clear[string](),
			CompletionResolvedAt:         models.Set(m.deps.Now()),
			CompletionResolvedBy:         models.Set(adminID),
			CompletionResolution:         models.Set(models.ResolutionRejected),
			CompletionResolutionNotes:    models.Set(notes),
		}
		if err := tx.UpdateApplication(ctx, current.ID, patch); err != nil {
			return err
		}
		patch.Apply(current)
		app, gig = *current, *currentGig
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.deps.Logger.Info("dispute resolved for employer",
		zap.String("application_id", app.ID),
		zap.String("gig_id", gig.ID),
		zap.String("admin_id", adminID),
	)
	for _, userID := range []string{app.ApplicantID, gig.EmployerID} {
		bestEffort(m.deps.Logger, "dispute notification",
			m.deps.Notifier.NotifyDisputeResolved(ctx, userID, gig, app.ID, models.ResolutionRejected),
			zap.String("application_id", app.ID))
	}
	return &DisputeResolution{
		ApplicationID: app.ID,
		Resolution:    models.ResolutionRejected,
		Message:       "Dispute resolved in favour of the employer. The escrow remains held and the worker may request completion again.",
	}, nil
}

// GetAllDisputedApplications lists funded applications with an open dispute.
func (m *DisputeMediator) GetAllDisputedApplications(ctx context.Context) ([]models.Application, error) {
	return m.deps.Store.ListDisputedApplications(ctx)
}
