package repository

import (
	"context"
	"errors"
	"time"

	"GigSafe/internal/models"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrTransactionConflict = errors.New("transaction conflict")
)

type PaymentHistoryQuery struct {
	UserID string
	GigID  string
	Type   models.PaymentHistoryType
	Status models.PaymentHistoryStatus
	Limit  int
}

// Reader is the read side shared by the store and its transactions. Inside a
// transaction every read is part of the transaction's read set.
type Reader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetGig(ctx context.Context, id string) (*models.Gig, error)
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ListApplicationsByGig(ctx context.Context, gigID string) ([]models.Application, error)
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	FindPaymentHistory(ctx context.Context, q PaymentHistoryQuery) ([]models.PaymentHistory, error)
}

type Tx interface {
	Reader

	CreateGig(ctx context.Context, gig *models.Gig) error
	UpdateGig(ctx context.Context, id string, patch models.GigPatch) error

	CreateApplication(ctx context.Context, app *models.Application) error
	UpdateApplication(ctx context.Context, id string, patch models.ApplicationPatch) error

	// IncrementUserBalances applies relative increments to one user's ledger.
	IncrementUserBalances(ctx context.Context, id string, delta models.BalanceDelta) error
	SetUserPendingBalance(ctx context.Context, id string, amount float64) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	MarkPaymentReleased(ctx context.Context, id string, at time.Time) error

	CreatePaymentHistory(ctx context.Context, entry *models.PaymentHistory) error
	CompletePaymentHistory(ctx context.Context, id string, amount float64, description string, at time.Time) error

	LatestFeeConfigurationVersion(ctx context.Context) (int, error)
	DeactivateFeeConfigurations(ctx context.Context) error
	CreateFeeConfiguration(ctx context.Context, cfg *models.FeeConfiguration) error
}

// TxRunner runs fn inside one atomic transaction, once. A write conflict at any
// point surfaces as ErrTransactionConflict.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

type SettingsStore interface {
	ActiveFeeConfiguration(ctx context.Context) (*models.FeeConfiguration, error)
	GetSetting(ctx context.Context, key string) (*models.PlatformSetting, error)
	UpsertSetting(ctx context.Context, setting *models.PlatformSetting) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) error
	DeleteNotification(ctx context.Context, userID, id string) error
	// DeleteReadNotifications removes the user's read notifications and
	// returns how many were removed.
	DeleteReadNotifications(ctx context.Context, userID string) (int64, error)
}

type Store interface {
	Reader
	TxRunner
	SettingsStore
	NotificationStore

	// ListDisputedApplications returns funded applications with an open dispute.
	ListDisputedApplications(ctx context.Context) ([]models.Application, error)
	// ListDueAutoReleases returns funded, undisputed applications whose
	// auto-release deadline is at or before now.
	ListDueAutoReleases(ctx context.Context, now time.Time, limit int) ([]models.Application, error)
}
