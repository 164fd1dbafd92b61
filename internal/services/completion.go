package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

const minDisputeReasonLength = 10

// CompletionService owns the application lifecycle up to funding and the
// worker/employer completion cycle.
type CompletionService struct {
	deps Dependencies
}

func NewCompletionService(deps Dependencies) *CompletionService {
	return &CompletionService{deps: deps.withDefaults()}
}

func (s *CompletionService) CreateGig(ctx context.Context, employerID, title, description string, amount float64) (*models.Gig, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	}
	cfg, err := s.deps.Config.ActiveFeeConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.AllowsAmount(amount) {
		return nil, fmt.Errorf("%w: amount R%.2f is outside the allowed gig range", ErrValidation, amount)
	}
	if _, err := s.deps.Store.GetUser(ctx, employerID); err != nil {
		return nil, fmt.Errorf("load employer %s: %w", employerID, err)
	}

	gig := models.Gig{
		EmployerID:   employerID,
		Title:        title,
		Description:  strings.TrimSpace(description),
		EscrowAmount: roundCents(amount),
		Status:       models.GigOpen,
	}
	err = s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		created := gig
		if err := tx.CreateGig(ctx, &created); err != nil {
			return err
		}
		gig = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &gig, nil
}

func (s *CompletionService) ApplyToGig(ctx context.Context, gigID, workerID string, proposedRate float64, coverNote string) (*models.Application, error) {
	if math.IsNaN(proposedRate) || math.IsInf(proposedRate, 0) || proposedRate < 0 {
		return nil, fmt.Errorf("%w: proposed rate must not be negative", ErrValidation)
	}

	var (
		app models.Application
		gig models.Gig
	)
	err := s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetGig(ctx, gigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", gigID, err)
		}
		if current.EmployerID == workerID {
			return fmt.Errorf("%w: employers cannot apply to their own gig", ErrUnauthorized)
		}
		if !current.IsBrowsable() {
			return fmt.Errorf("%w: gig is no longer accepting applications", ErrInvalidState)
		}
		siblings, err := tx.ListApplicationsByGig(ctx, gigID)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ApplicantID == workerID {
				return fmt.Errorf("%w: you have already applied to this gig", ErrAlreadyRequested)
			}
		}

		created := models.Application{
			GigID:         gigID,
			ApplicantID:   workerID,
			EmployerID:    current.EmployerID,
			CoverNote:     strings.TrimSpace(coverNote),
			ProposedRate:  roundCents(proposedRate),
			PaymentStatus: models.PaymentUnpaid,
			Status:        models.ApplicationPending,
		}
		if err := tx.CreateApplication(ctx, &created); err != nil {
			return err
		}
		app, gig = created, *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	bestEffort(s.deps.Logger, "application notification",
		s.deps.Notifier.NotifyApplicationReceived(ctx, gig.EmployerID, gig, app), zap.String("application_id", app.ID))
	return &app, nil
}

// UpdateApplicationStatus moves an application to accepted, rejected or
// withdrawn. Acceptance re-checks the single-worker rule against the sibling
// applications inside the transaction.
func (s *CompletionService) UpdateApplicationStatus(ctx context.Context, applicationID, actorID string, status models.ApplicationStatus) (*models.Application, error) {
	switch status {
	case models.ApplicationAccepted:
		return s.acceptApplication(ctx, applicationID, actorID)
	case models.ApplicationRejected:
		return s.rejectApplication(ctx, applicationID, actorID)
	case models.ApplicationWithdrawn:
		return s.withdrawApplication(ctx, applicationID, actorID)
	default:
		return nil, fmt.Errorf("%w: status %q cannot be set directly", ErrValidation, status)
	}
}

func (s *CompletionService) acceptApplication(ctx context.Context, applicationID, employerID string) (*models.Application, error) {
	var (
		accepted models.Application
		gig      models.Gig
		rejected []models.Application
	)
	err := s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		rejected = rejected[:0]

		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", applicationID, err)
		}
		current, err := tx.GetGig(ctx, app.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", app.GigID, err)
		}
		if current.EmployerID != employerID {
			return fmt.Errorf("%w: only the gig's employer can accept applications", ErrUnauthorized)
		}

		siblings, err := tx.ListApplicationsByGig(ctx, current.ID)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID != app.ID && sibling.HoldsGig() {
				return ErrAlreadySelected
			}
		}
		if current.AssignedTo != nil && *current.AssignedTo != app.ApplicantID {
			return ErrAlreadySelected
		}
		if app.Status != models.ApplicationPending {
			return fmt.Errorf("%w: application is %s, expected pending", ErrInvalidState, app.Status)
		}
		if current.Status != models.GigOpen {
			return fmt.Errorf("%w: gig is %s", ErrInvalidState, current.Status)
		}

		if err := tx.UpdateApplication(ctx, app.ID, models.ApplicationPatch{Status: models.Set(models.ApplicationAccepted)}); err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.ID == app.ID || sibling.Status != models.ApplicationPending {
				continue
			}
			if err := tx.UpdateApplication(ctx, sibling.ID, models.ApplicationPatch{Status: models.Set(models.ApplicationRejected)}); err != nil {
				return err
			}
			rejected = append(rejected, sibling)
		}
		// Gig status stays open until funding; assignment alone hides it from browsing.
		if err := tx.UpdateGig(ctx, current.ID, models.GigPatch{AssignedTo: models.Set(app.ApplicantID)}); err != nil {
			return err
		}

		accepted, gig = *app, *current
		accepted.Status = models.ApplicationAccepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	field := zap.String("application_id", accepted.ID)
	bestEffort(s.deps.Logger, "acceptance notification",
		s.deps.Notifier.NotifyApplicationAccepted(ctx, accepted.ApplicantID, gig, accepted.ID), field)
	for _, sibling := range rejected {
		bestEffort(s.deps.Logger, "rejection notification",
			s.deps.Notifier.NotifyApplicationRejected(ctx, sibling.ApplicantID, gig, sibling.ID),
			zap.String("application_id", sibling.ID))
	}
	return &accepted, nil
}

func (s *CompletionService) rejectApplication(ctx context.Context, applicationID, employerID string) (*models.Application, error) {
	var (
		app models.Application
		gig models.Gig
	)
	err := s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", applicationID, err)
		}
		currentGig, err := tx.GetGig(ctx, current.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", current.GigID, err)
		}
		if currentGig.EmployerID != employerID {
			return fmt.Errorf("%w: only the gig's employer can reject applications", ErrUnauthorized)
		}
		if current.Status != models.ApplicationPending {
			return fmt.Errorf("%w: application is %s, expected pending", ErrInvalidState, current.Status)
		}
		if err := tx.UpdateApplication(ctx, current.ID, models.ApplicationPatch{Status: models.Set(models.ApplicationRejected)}); err != nil {
			return err
		}
		app, gig = *current, *currentGig
		app.Status = models.ApplicationRejected
		return nil
	})
	if err != nil {
		return nil, err
	}

	bestEffort(s.deps.Logger, "rejection notification",
		s.deps.Notifier.NotifyApplicationRejected(ctx, app.ApplicantID, gig, app.ID), zap.String("application_id", app.ID))
	return &app, nil
}

func (s *CompletionService) withdrawApplication(ctx context.Context, applicationID, workerID string) (*models.Application, error) {
	var app models.Application
	err := s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", applicationID, err)
		}
		if current.ApplicantID != workerID {
			return fmt.Errorf("%w: only the applicant can withdraw an application", ErrUnauthorized)
		}
		if current.Status != models.ApplicationPending && current.Status != models.ApplicationAccepted {
			return fmt.Errorf("%w: application is %s and can no longer be withdrawn", ErrInvalidState, current.Status)
		}
		if err := tx.UpdateApplication(ctx, current.ID, models.ApplicationPatch{Status: models.Set(models.ApplicationWithdrawn)}); err != nil {
			return err
		}
		if current.Status == models.ApplicationAccepted {
			gig, err := tx.GetGig(ctx, current.GigID)
			if err != nil {
				return fmt.Errorf("load gig %s: %w", current.GigID, err)
			}
			if gig.AssignedTo != nil && *gig.AssignedTo == workerID {
				if err := tx.UpdateGig(ctx, gig.ID, models.GigPatch{AssignedTo: models.Clear[string]()}); err != nil {
					return err
				}
			}
		}
		app = *current
		app.Status = models.ApplicationWithdrawn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// RequestCompletionByWorker opens a completion request and schedules its
// auto-release. A new request starts a fresh cycle, so any earlier dispute
// resolution is cleared.
func (s *CompletionService) RequestCompletionByWorker(ctx context.Context, applicationID, workerID string) (*models.Application, error) {
	days, err := s.deps.Config.AutoReleaseDays(ctx)
	if err != nil {
		return nil, err
	}

	var (
		app models.Application
		gig models.Gig
	)
	err = s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", applicationID, err)
		}
		if current.ApplicantID != workerID {
			return fmt.Errorf("%w: only the assigned worker can request completion", ErrUnauthorized)
		}
		if current.Status != models.ApplicationFunded {
			return fmt.Errorf("%w: application is %s, expected funded", ErrInvalidState, current.Status)
		}
		if current.CompletionRequestedAt != nil {
			return fmt.Errorf("%w: completion was requested on %s", ErrAlreadyRequested, current.CompletionRequestedAt.Format(time.RFC3339))
		}
		currentGig, err := tx.GetGig(ctx, current.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", current.GigID, err)
		}

		now := s.deps.Now()
		patch := models.ApplicationPatch{
			CompletionRequestedAt:        models.Set(now),
			CompletionRequestedBy:        models.Set(models.CompletionRequestedByWorker),
			CompletionAutoReleaseAt:      models.Set(now.AddDate(0, 0, days)),
			CompletionDisputedAt:         models.Clear[time.Time](),
			CompletionDisputeReason:      models.Clear[string](),
			CompletionDisputeEvidenceURL: models.Clear[string](),
			CompletionResolvedAt:         models.Clear[time.Time](),
			CompletionResolvedBy:         models.Clear[string](),
			CompletionResolution:         models.Clear[models.CompletionResolution](),
			CompletionResolutionNotes:    models.Clear[string](),
			AutoReleaseFailedAt:          models.Clear[time.Time](),
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

	bestEffort(s.deps.Logger, "completion notification",
		s.deps.Notifier.NotifyCompletionRequested(ctx, gig.EmployerID, gig, app.ID, *app.CompletionAutoReleaseAt),
		zap.String("application_id", app.ID))
	return &app, nil
}

// DisputeCompletion records the employer's dispute and cancels the pending
// auto-release. A disputed completion must never auto-release.
func (s *CompletionService) DisputeCompletion(ctx context.Context, applicationID, employerID, reason, evidenceURL string) (*models.Application, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < minDisputeReasonLength {
		return nil, fmt.Errorf("%w: dispute reason must be at least %d characters", ErrValidation, minDisputeReasonLength)
	}

	var (
		app models.Application
		gig models.Gig
	)
	err := s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", applicationID, err)
		}
		currentGig, err := tx.GetGig(ctx, current.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", current.GigID, err)
		}
		if currentGig.EmployerID != employerID {
			return fmt.Errorf("%w: only the gig's employer can dispute completion", ErrUnauthorized)
		}
		if current.Status != models.ApplicationFunded {
			return fmt.Errorf("%w: application is %s, expected funded", ErrInvalidState, current.Status)
		}
		if !current.HasCompletionRequest() {
			return fmt.Errorf("%w: no completion has been requested", ErrInvalidState)
		}
		if current.CompletionDisputedAt != nil {
			return fmt.Errorf("%w: completion is already disputed", ErrAlreadyRequested)
		}

		patch := models.ApplicationPatch{
			CompletionDisputedAt:    models.Set(s.deps.Now()),
			CompletionDisputeReason: models.Set(reason),
			CompletionAutoReleaseAt: models.Clear[time.Time](),
		}
		if url := strings.TrimSpace(evidenceURL); url != "" {
			patch.CompletionDisputeEvidenceURL = models.Set(url)
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

	bestEffort(s.deps.Logger, "dispute notification",
		s.deps.Notifier.NotifyCompletionDisputed(ctx, app.ApplicantID, gig, app.ID, reason),
		zap.String("application_id", app.ID))
	return &app, nil
}
