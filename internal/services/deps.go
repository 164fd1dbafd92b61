package services

import (
	"time"

	"go.uber.org/zap"

	"GigSafe/internal/repository"
)

const defaultProviderTimeout = 20 * time.Second

// Dependencies wires the escrow services together. Zero-valued optional
// fields are filled with defaults by withDefaults.
type Dependencies struct {
	Store      repository.Store
	Transactor *repository.Transactor
	Provider   EscrowProvider
	Config     ConfigSource
	Notifier   *NotificationService
	Logger     *zap.Logger
	Now        func() time.Time

	ProviderTimeout time.Duration
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Transactor == nil {
		d.Transactor = repository.NewTransactor(d.Store, repository.DefaultRetryPolicy(), d.Logger)
	}
	if d.Config == nil {
		d.Config = NewSettingsService(d.Store, d.Transactor, d.Now)
	}
	if d.ProviderTimeout <= 0 {
		d.ProviderTimeout = defaultProviderTimeout
	}
	return d
}
