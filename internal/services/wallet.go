package services

import (
	"context"
	"fmt"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

const defaultHistoryLimit = 50

type WalletBalance struct {
	WalletBalance  float64 `json:"wallet_balance"`
	PendingBalance float64 `json:"pending_balance"`
	TotalEarnings  float64 `json:"total_earnings"`
	CompletedGigs  int     `json:"completed_gigs"`
}

type WalletService struct {
	store repository.Reader
}

func NewWalletService(store repository.Reader) *WalletService {
	return &WalletService{store: store}
}

func (s *WalletService) GetWalletBalance(ctx context.Context, userID string) (*WalletBalance, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return &WalletBalance{
		WalletBalance:  user.WalletBalance,
		PendingBalance: user.PendingBalance,
		TotalEarnings:  user.TotalEarnings,
		CompletedGigs:  user.CompletedGigs,
	}, nil
}

// ListPaymentHistory returns the user's entries, newest first.
func (s *WalletService) ListPaymentHistory(ctx context.Context, userID string, historyType models.PaymentHistoryType, limit int) ([]models.PaymentHistory, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	return s.store.FindPaymentHistory(ctx, repository.PaymentHistoryQuery{
		UserID: userID,
		Type:   historyType,
		Limit:  limit,
	})
}
