package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

type ReleaseTrigger string

const (
	TriggerEmployerApproval  ReleaseTrigger = "employer_approval"
	TriggerAutoRelease       ReleaseTrigger = "auto_release"
	TriggerDisputeResolution ReleaseTrigger = "dispute_resolution"
)

var errAutoReleaseNotDue = errors.New("auto-release not due")

type ReleaseResult struct {
	ApplicationID            string         `json:"application_id"`
	GigID                    string         `json:"gig_id"`
	Trigger                  ReleaseTrigger `json:"trigger"`
	GrossAmount              float64        `json:"gross_amount"`
	NetAmount                float64        `json:"net_amount"`
	PlatformCommission       float64        `json:"platform_commission"`
	TradeSafePayoutTriggered bool           `json:"tradesafe_payout_triggered"`
	Message                  string         `json:"message"`
}

type releaseRequest struct {
	applicationID string
	actorID       string
	trigger       ReleaseTrigger
	notes         string
}

// EscrowReleaseService releases a funded escrow to the worker. Employer
// approval, auto-release and dispute resolution all go through release.
type EscrowReleaseService struct {
	deps   Dependencies
	ledger *LedgerUpdater
}

func NewEscrowReleaseService(deps Dependencies) *EscrowReleaseService {
	deps = deps.withDefaults()
	return &EscrowReleaseService{deps: deps, ledger: NewLedgerUpdater(deps.Now)}
}

// ApproveCompletion releases the escrow on the employer's approval. Ownership
// is checked before anything is written or sent to the provider.
func (s *EscrowReleaseService) ApproveCompletion(ctx context.Context, applicationID, employerID string) (*ReleaseResult, error) {
	app, err := s.deps.Store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", applicationID, err)
	}
	gig, err := s.deps.Store.GetGig(ctx, app.GigID)
	if err != nil {
		return nil, fmt.Errorf("load gig %s: %w", app.GigID, err)
	}
	if gig.EmployerID != employerID {
		return nil, fmt.Errorf("%w: only the gig's employer can approve completion", ErrUnauthorized)
	}
	if !app.HasCompletionRequest() {
		return nil, fmt.Errorf("%w: no completion has been requested", ErrInvalidState)
	}

	return s.release(ctx, releaseRequest{
		applicationID: applicationID,
		actorID:       employerID,
		trigger:       TriggerEmployerApproval,
	})
}

// AttemptAutoRelease releases the escrow if the completion request has timed
// out without a dispute. Calling it when nothing is due is a no-op.
func (s *EscrowReleaseService) AttemptAutoRelease(ctx context.Context, applicationID string) (*ReleaseResult, bool, error) {
	result, err := s.release(ctx, releaseRequest{
		applicationID: applicationID,
		actorID:       "system",
		trigger:       TriggerAutoRelease,
	})
	if errors.Is(err, errAutoReleaseNotDue) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

type SweepSummary struct {
	Checked  int `json:"checked"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// SweepAutoReleases attempts every due auto-release. One failure does not
// stop the rest, and a failed application is skipped by later sweeps until
// models.AutoReleaseRetryAfter has passed.
func (s *EscrowReleaseService) SweepAutoReleases(ctx context.Context, limit int) (SweepSummary, error) {
	due, err := s.deps.Store.ListDueAutoReleases(ctx, s.deps.Now(), limit)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list due auto-releases: %w", err)
	}

	var summary SweepSummary
	for _, app := range due {
		summary.Checked++
		_, released, err := s.AttemptAutoRelease(ctx, app.ID)
		if err != nil {
			summary.Failed++
			s.deps.Logger.Error("auto-release failed",
				zap.String("application_id", app.ID),
				zap.String("gig_id", app.GigID),
				zap.Error(err),
			)
			s.markAutoReleaseFailed(ctx, app.ID)
			continue
		}
		if released {
			summary.Released++
		}
	}
	return summary, nil
}

func (s *EscrowReleaseService) markAutoReleaseFailed(ctx context.Context, applicationID string) {
	patch := models.ApplicationPatch{AutoReleaseFailedAt: models.Set(s.deps.Now())}
	err := s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		return tx.UpdateApplication(ctx, applicationID, patch)
	})
	if err != nil {
		s.deps.Logger.Warn("record auto-release failure",
			zap.String("application_id", applicationID),
			zap.Error(err),
		)
	}
}

// authorize re-validates the trigger's preconditions against state read
// inside the transaction.
func (r releaseRequest) authorize(app *models.Application, gig *models.Gig, now time.Time) error {
	switch r.trigger {
	case TriggerEmployerApproval:
		if gig.EmployerID != r.actorID {
			return fmt.Errorf("%w: only the gig's employer can approve completion", ErrUnauthorized)
		}
		if app.Status != models.ApplicationFunded {
			return fmt.Errorf("%w: application is %s, expected funded", ErrInvalidState, app.Status)
		}
		if !app.HasCompletionRequest() {
			return fmt.Errorf("%w: no completion has been requested", ErrInvalidState)
		}
	case TriggerAutoRelease:
		if !app.AutoReleaseDue(now) {
			return errAutoReleaseNotDue
		}
	case TriggerDisputeResolution:
		if app.CompletionResolvedAt != nil {
			return fmt.Errorf("%w: resolved on %s", ErrAlreadyResolved, app.CompletionResolvedAt.Format(time.RFC3339))
		}
		if !app.IsDisputed() {
			return fmt.Errorf("%w: application %s has no open dispute", ErrNoActiveDispute, app.ID)
		}
		if app.Status != models.ApplicationFunded {
			return fmt.Errorf("%w: application is %s, expected funded", ErrInvalidState, app.Status)
		}
	default:
		return fmt.Errorf("%w: unknown release trigger %q", ErrValidation, r.trigger)
	}
	return nil
}

func (s *EscrowReleaseService) release(ctx context.Context, req releaseRequest) (*ReleaseResult, error) {
	feeConfig, err := s.deps.Config.ActiveFeeConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	var (
		app     models.Application
		gig     models.Gig
		payment models.Payment
		fees    FeeBreakdown
	)
	err = s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		now := s.deps.Now()

		current, err := tx.GetApplication(ctx, req.applicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", req.applicationID, err)
		}
		currentGig, err := tx.GetGig(ctx, current.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", current.GigID, err)
		}
		if err := req.authorize(current, currentGig, now); err != nil {
			return err
		}
		if current.PaymentID == nil {
			return fmt.Errorf("%w: application has no escrow payment", ErrInvalidState)
		}
		currentPayment, err := tx.GetPayment(ctx, *current.PaymentID)
		if err != nil {
			return fmt.Errorf("load payment %s: %w", *current.PaymentID, err)
		}
		if currentPayment.Status == models.PaymentReleased {
			return fmt.Errorf("%w: escrow payment already released", ErrInvalidState)
		}

		fees, err = CalculateFees(currentGig.EscrowAmount, feeConfig)
		if err != nil {
			return err
		}
		lc := LedgerContext{
			PaymentID:          currentPayment.ID,
			ApplicationID:      current.ID,
			GigID:              currentGig.ID,
			WorkerID:           current.ApplicantID,
			EmployerID:         currentGig.EmployerID,
			GrossAmount:        fees.GrossAmount,
			NetAmount:          fees.NetAmountToWorker,
			PlatformCommission: fees.PlatformCommission,
		}
		if err := s.ledger.ReleaseEscrowInTransaction(ctx, tx, lc); err != nil {
			return err
		}

		patch := models.ApplicationPatch{
			Status:                  models.Set(models.ApplicationCompleted),
			PaymentStatus:           models.Set(models.PaymentReleased),
			CompletionAutoReleaseAt: models.Clear[time.Time](),
			CompletedAt:             models.Set(now),
		}
		if req.trigger == TriggerDisputeResolution {
			patch.CompletionResolvedAt = models.Set(now)
			patch.CompletionResolvedBy = models.Set(req.actorID)
			patch.CompletionResolution = models.Set(models.ResolutionApproved)
			if notes := strings.TrimSpace(req.notes); notes != "" {
				patch.CompletionResolutionNotes = models.Set(notes)
			}
		}
		if err := tx.UpdateApplication(ctx, current.ID, patch); err != nil {
			return fmt.Errorf("complete application: %w", err)
		}
		if err := tx.UpdateGig(ctx, currentGig.ID, models.GigPatch{Status: models.Set(models.GigCompleted)}); err != nil {
			return fmt.Errorf("complete gig: %w", err)
		}
		if err := tx.IncrementUserBalances(ctx, current.ApplicantID, models.BalanceDelta{CompletedGigs: 1}); err != nil {
			return fmt.Errorf("count completed gig: %w", err)
		}
		if err := tx.MarkPaymentReleased(ctx, currentPayment.ID, now); err != nil {
			return fmt.Errorf("release payment: %w", err)
		}
		if err := s.ledger.RecordReleaseHistory(ctx, tx, lc, currentGig.Title); err != nil {
			return err
		}

		app, gig, payment = *current, *currentGig, *currentPayment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("escrow released",
		zap.String("application_id", app.ID),
		zap.String("gig_id", gig.ID),
		zap.String("trigger", string(req.trigger)),
		zap.Float64("gross", fees.GrossAmount),
		zap.Float64("net", fees.NetAmountToWorker),
		zap.Float64("commission", fees.PlatformCommission),
	)

	triggered := s.reconcileProvider(ctx, app, payment)
	s.notifyReleased(ctx, req, app, gig, fees)

	message := fmt.Sprintf("Completion approved. R%.2f has been credited to the worker's wallet.", fees.NetAmountToWorker)
	if triggered {
		message += " The bank payout has also been initiated."
	}
	return &ReleaseResult{
		ApplicationID:            app.ID,
		GigID:                    gig.ID,
		Trigger:                  req.trigger,
		GrossAmount:              fees.GrossAmount,
		NetAmount:                fees.NetAmountToWorker,
		PlatformCommission:       fees.PlatformCommission,
		TradeSafePayoutTriggered: triggered,
		Message:                  message,
	}, nil
}

// reconcileProvider drives the provider allocation towards ACCEPTED once the
// local release has committed. It never fails the release: errors are logged
// and reported as an untriggered payout.
func (s *EscrowReleaseService) reconcileProvider(ctx context.Context, app models.Application, payment models.Payment) bool {
	if s.deps.Provider == nil {
		return false
	}
	log := s.deps.Logger.With(
		zap.String("application_id", app.ID),
		zap.String("gig_id", app.GigID),
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.ProviderTransactionID),
		zap.String("allocation_id", payment.ProviderAllocationID),
	)
	if payment.ProviderTransactionID == "" {
		log.Warn("payment has no provider transaction, skipping payout")
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.ProviderTimeout)
	defer cancel()

	txn, err := s.deps.Provider.GetTransaction(ctx, payment.ProviderTransactionID)
	if err != nil {
		log.Error("escrow provider lookup failed", zap.Error(err))
		return false
	}
	if txn.State != TransactionFundsReceived {
		log.Info("provider has not received funds yet, payout deferred", zap.String("state", txn.State))
		return false
	}
	allocation, ok := txn.Allocation(payment.ProviderAllocationID)
	if !ok {
		log.Warn("allocation not found on provider transaction")
		return false
	}

	steps := deliverySteps(s.deps.Provider, allocation.State)
	if steps == nil {
		if allocation.State == AllocationAccepted {
			return true
		}
		log.Warn("allocation is in a state the release cannot advance", zap.String("state", allocation.State))
		return false
	}
	for _, step := range steps {
		if err := step.run(ctx, allocation.ID); err != nil {
			log.Error("escrow provider delivery step failed", zap.String("step", step.name), zap.Error(err))
			return false
		}
	}
	log.Info("provider payout triggered", zap.String("from_state", allocation.State))
	return true
}

type deliveryStep struct {
	name string
	run  func(ctx context.Context, allocationID string) error
}

// deliverySteps returns the remaining provider calls that take an allocation
// from state to ACCEPTED, or nil when there is nothing to drive.
func deliverySteps(p EscrowProvider, state string) []deliveryStep {
	all := []deliveryStep{
		{name: "start_delivery", run: p.StartDelivery},
		{name: "complete_delivery", run: p.CompleteDelivery},
		{name: "accept_delivery", run: p.AcceptDelivery},
	}
	switch state {
	case AllocationCreated:
		return all
	case AllocationInitiated:
		return all[1:]
	case AllocationDelivered:
		return all[2:]
	default:
		return nil
	}
}

func (s *EscrowReleaseService) notifyReleased(ctx context.Context, req releaseRequest, app models.Application, gig models.Gig, fees FeeBreakdown) {
	n := s.deps.Notifier
	fields := []zap.Field{zap.String("application_id", app.ID)}
	bestEffort(s.deps.Logger, "release notification",
		n.NotifyPaymentReleased(ctx, app.ApplicantID, gig, app.ID, fees.NetAmountToWorker), fields...)
	if req.trigger != TriggerDisputeResolution {
		return
	}
	for _, userID := range []string{app.ApplicantID, gig.EmployerID} {
		bestEffort(s.deps.Logger, "dispute notification",
			n.NotifyDisputeResolved(ctx, userID, gig, app.ID, models.ResolutionApproved), fields...)
	}
}
