package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

type FundRequest struct {
	ApplicationID         string
	EmployerID            string
	ProviderTransactionID string
	ProviderAllocationID  string
	// Amount defaults to the applicant's proposed rate when zero.
	Amount float64
}

type FundingService struct {
	deps Dependencies
}

func NewFundingService(deps Dependencies) *FundingService {
	return &FundingService{deps: deps.withDefaults()}
}

// FundApplication records an escrow the employer has paid into the provider.
// The provider is asked first; nothing is written unless it reports the funds
// as received.
func (s *FundingService) FundApplication(ctx context.Context, req FundRequest) (*models.Payment, error) {
	if req.ProviderTransactionID == "" {
		return nil, fmt.Errorf("%w: provider transaction id is required", ErrValidation)
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	app, err := s.deps.Store.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", req.ApplicationID, err)
	}
	gig, err := s.deps.Store.GetGig(ctx, app.GigID)
	if err != nil {
		return nil, fmt.Errorf("load gig %s: %w", app.GigID, err)
	}
	if err := checkFundable(app, gig, req.EmployerID); err != nil {
		return nil, err
	}

	gross := req.Amount
	if gross == 0 {
		gross = app.ProposedRate
	}
	gross = roundCents(gross)
	if gross <= 0 {
		return nil, fmt.Errorf("%w: escrow amount must be positive", ErrValidation)
	}
	feeConfig, err := s.deps.Config.ActiveFeeConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	if !feeConfig.AllowsAmount(gross) {
		return nil, fmt.Errorf("%w: amount R%.2f is outside the allowed gig range", ErrValidation, gross)
	}

	allocationID, err := s.verifyFunds(ctx, req)
	if err != nil {
		return nil, err
	}

	var payment models.Payment
	err = s.deps.Transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		current, err := tx.GetApplication(ctx, req.ApplicationID)
		if err != nil {
			return fmt.Errorf("load application %s: %w", req.ApplicationID, err)
		}
		currentGig, err := tx.GetGig(ctx, current.GigID)
		if err != nil {
			return fmt.Errorf("load gig %s: %w", current.GigID, err)
		}
		if err := checkFundable(current, currentGig, req.EmployerID); err != nil {
			return err
		}

		created := models.Payment{
			ApplicationID:         current.ID,
			GigID:                 currentGig.ID,
			EmployerID:            currentGig.EmployerID,
			WorkerID:              current.ApplicantID,
			Amount:                gross,
			Currency:              "ZAR",
			Provider:              "tradesafe",
			ProviderTransactionID: req.ProviderTransactionID,
			ProviderAllocationID:  allocationID,
			Status:                models.PaymentInEscrow,
		}
		if err := tx.CreatePayment(ctx, &created); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		err = tx.UpdateApplication(ctx, current.ID, models.ApplicationPatch{
			Status:        models.Set(models.ApplicationFunded),
			PaymentStatus: models.Set(models.PaymentInEscrow),
			PaymentID:     models.Set(created.ID),
			AgreedRate:    models.Set(gross),
		})
		if err != nil {
			return fmt.Errorf("fund application: %w", err)
		}
		err = tx.UpdateGig(ctx, currentGig.ID, models.GigPatch{
			Status:       models.Set(models.GigInProgress),
			EscrowAmount: models.Set(gross),
		})
		if err != nil {
			return fmt.Errorf("start gig: %w", err)
		}

		for _, userID := range []string{current.ApplicantID, currentGig.EmployerID} {
			if err := tx.IncrementUserBalances(ctx, userID, models.BalanceDelta{PendingBalance: gross}); err != nil {
				return fmt.Errorf("hold pending balance for %s: %w", userID, err)
			}
		}
		err = tx.CreatePaymentHistory(ctx, &models.PaymentHistory{
			UserID:        current.ApplicantID,
			GigID:         currentGig.ID,
			ApplicationID: current.ID,
			PaymentID:     created.ID,
			Type:          models.HistoryEarnings,
			Status:        models.HistoryPending,
			Amount:        gross,
			Description:   fmt.Sprintf("Escrow held for %s", currentGig.Title),
		})
		if err != nil {
			return fmt.Errorf("record pending earnings: %w", err)
		}

		payment, app, gig = created, current, currentGig
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("escrow funded",
		zap.String("application_id", app.ID),
		zap.String("gig_id", gig.ID),
		zap.String("payment_id", payment.ID),
		zap.String("transaction_id", payment.ProviderTransactionID),
		zap.Float64("amount", gross),
	)
	bestEffort(s.deps.Logger, "funding notification",
		s.deps.Notifier.NotifyEscrowFunded(ctx, app.ApplicantID, *gig, app.ID, gross),
		zap.String("application_id", app.ID))
	return &payment, nil
}

func checkFundable(app *models.Application, gig *models.Gig, employerID string) error {
	if gig.EmployerID != employerID {
		return fmt.Errorf("%w: only the gig's employer can fund the escrow", ErrUnauthorized)
	}
	if app.Status != models.ApplicationAccepted {
		return fmt.Errorf("%w: application is %s, expected accepted", ErrInvalidState, app.Status)
	}
	if gig.AssignedTo == nil || *gig.AssignedTo != app.ApplicantID {
		return fmt.Errorf("%w: gig is not assigned to this applicant", ErrInvalidState)
	}
	return nil
}

// verifyFunds reads the provider transaction live and returns the allocation
// the release will later drive.
func (s *FundingService) verifyFunds(ctx context.Context, req FundRequest) (string, error) {
	if s.deps.Provider == nil {
		return "", fmt.Errorf("%w: escrow provider is not configured", ErrProvider)
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.ProviderTimeout)
	defer cancel()

	txn, err := s.deps.Provider.GetTransaction(ctx, req.ProviderTransactionID)
	if err != nil {
		s.deps.Logger.Error("escrow provider lookup failed",
			zap.String("application_id", req.ApplicationID),
			zap.String("transaction_id", req.ProviderTransactionID),
			zap.Error(err),
		)
		if errors.Is(err, ErrProvider) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if txn.State != TransactionFundsReceived {
		return "", fmt.Errorf("%w: provider transaction is %s, funds not received", ErrInvalidState, txn.State)
	}
	allocation, ok := txn.Allocation(req.ProviderAllocationID)
	if !ok {
		return "", fmt.Errorf("%w: allocation not found on provider transaction", ErrValidation)
	}
	return allocation.ID, nil
}
