package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

// LedgerContext carries everything the ledger needs for one escrow release.
type LedgerContext struct {
	PaymentID          string
	ApplicationID      string
	GigID              string
	WorkerID           string
	EmployerID         string
	GrossAmount        float64
	NetAmount          float64
	PlatformCommission float64
}

type LedgerUpdater struct {
	now func() time.Time
}

func NewLedgerUpdater(now func() time.Time) *LedgerUpdater {
	if now == nil {
		now = time.Now
	}
	return &LedgerUpdater{now: now}
}

// ReleaseEscrowInTransaction moves gross out of the worker's pending balance,
// credits the net to wallet and earnings, and reduces the employer's pending
// balance without letting it go negative. It must run inside the same
// transaction as the application and gig status writes.
func (l *LedgerUpdater) ReleaseEscrowInTransaction(ctx context.Context, tx repository.Tx, lc LedgerContext) error {
	worker, err := tx.GetUser(ctx, lc.WorkerID)
	if err != nil {
		return fmt.Errorf("load worker %s: %w", lc.WorkerID, err)
	}

	gross := decimal.NewFromFloat(lc.GrossAmount).Round(2)
	if gross.IsPositive() {
		pending := decimal.NewFromFloat(worker.PendingBalance).Round(2)
		if pending.LessThan(gross) {
			return fmt.Errorf("%w: worker %s has %s pending, release needs %s",
				ErrInsufficientBalance, lc.WorkerID, pending.StringFixed(2), gross.StringFixed(2))
		}
	}

	err = tx.IncrementUserBalances(ctx, lc.WorkerID, models.BalanceDelta{
		PendingBalance: -gross.InexactFloat64(),
		WalletBalance:  lc.NetAmount,
		TotalEarnings:  lc.NetAmount,
	})
	if err != nil {
		return fmt.Errorf("credit worker %s: %w", lc.WorkerID, err)
	}

	employer, err := tx.GetUser(ctx, lc.EmployerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load employer %s: %w", lc.EmployerID, err)
	}
	remaining := decimal.Max(decimal.Zero, decimal.NewFromFloat(employer.PendingBalance).Sub(gross))
	if err := tx.SetUserPendingBalance(ctx, lc.EmployerID, remaining.Round(2).InexactFloat64()); err != nil {
		return fmt.Errorf("debit employer %s: %w", lc.EmployerID, err)
	}
	return nil
}

// RecordReleaseHistory completes the worker's pending earnings entry for the
// gig in place, or inserts a completed one when none exists, and records the
// platform commission as a separate negative fees entry.
func (l *LedgerUpdater) RecordReleaseHistory(ctx context.Context, tx repository.Tx, lc LedgerContext, gigTitle string) error {
	now := l.now()
	description := fmt.Sprintf("Payment for %s", gigTitle)

	pending, err := tx.FindPaymentHistory(ctx, repository.PaymentHistoryQuery{
		UserID: lc.WorkerID,
		GigID:  lc.GigID,
		Type:   models.HistoryEarnings,
		Status: models.HistoryPending,
		Limit:  1,
	})
	if err != nil {
		return fmt.Errorf("find pending earnings: %w", err)
	}

	if len(pending) > 0 {
		err = tx.CompletePaymentHistory(ctx, pending[0].ID, lc.NetAmount, description, now)
	} else {
		err = tx.CreatePaymentHistory(ctx, &models.PaymentHistory{
			UserID:        lc.WorkerID,
			GigID:         lc.GigID,
			ApplicationID: lc.ApplicationID,
			PaymentID:     lc.PaymentID,
			Type:          models.HistoryEarnings,
			Status:        models.HistoryCompleted,
			Amount:        lc.NetAmount,
			Description:   description,
			CompletedAt:   &now,
		})
	}
	if err != nil {
		return fmt.Errorf("record earnings: %w", err)
	}

	if lc.PlatformCommission == 0 {
		return nil
	}
	err = tx.CreatePaymentHistory(ctx, &models.PaymentHistory{
		UserID:        lc.WorkerID,
		GigID:         lc.GigID,
		ApplicationID: lc.ApplicationID,
		PaymentID:     lc.PaymentID,
		Type:          models.HistoryFees,
		Status:        models.HistoryCompleted,
		Amount:        -lc.PlatformCommission,
		Description:   fmt.Sprintf("Platform fee for %s", gigTitle),
		CompletedAt:   &now,
	})
	if err != nil {
		return fmt.Errorf("record platform fee: %w", err)
	}
	return nil
}
