package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

const (
	minAutoReleaseDays = 1
	maxAutoReleaseDays = 90
)

// ConfigSource resolves platform configuration. Callers resolve it once per
// operation and pass the values down.
type ConfigSource interface {
	ActiveFeeConfiguration(ctx context.Context) (models.FeeConfiguration, error)
	AutoReleaseDays(ctx context.Context) (int, error)
}

type SettingsService struct {
	store      repository.SettingsStore
	transactor *repository.Transactor
	now        func() time.Time
}

func NewSettingsService(store repository.SettingsStore, transactor *repository.Transactor, now func() time.Time) *SettingsService {
	if now == nil {
		now = time.Now
	}
	return &SettingsService{store: store, transactor: transactor, now: now}
}

// ActiveFeeConfiguration falls back to the 10% default when nothing is stored.
func (s *SettingsService) ActiveFeeConfiguration(ctx context.Context) (models.FeeConfiguration, error) {
	cfg, err := s.store.ActiveFeeConfiguration(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return models.DefaultFeeConfiguration(), nil
	}
	if err != nil {
		return models.FeeConfiguration{}, fmt.Errorf("load fee configuration: %w", err)
	}
	return *cfg, nil
}

func (s *SettingsService) AutoReleaseDays(ctx context.Context) (int, error) {
	setting, err := s.store.GetSetting(ctx, models.SettingAutoReleaseDays)
	if errors.Is(err, repository.ErrNotFound) {
		return models.DefaultAutoReleaseDays, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load auto-release days: %w", err)
	}
	days, err := strconv.Atoi(setting.Value)
	if err != nil || days < minAutoReleaseDays || days > maxAutoReleaseDays {
		return models.DefaultAutoReleaseDays, nil
	}
	return days, nil
}

type FeeConfigurationInput struct {
	CommissionPercent float64
	MinGigAmount      float64
	MaxGigAmount      float64
	Notes             string
}

// SetFeeConfiguration stores a new active version and retires the previous one.
func (s *SettingsService) SetFeeConfiguration(ctx context.Context, adminID string, in FeeConfigurationInput) (*models.FeeConfiguration, error) {
	if !finite(in.CommissionPercent) || in.CommissionPercent < 0 || in.CommissionPercent > 100 {
		return nil, fmt.Errorf("%w: commission percent must be between 0 and 100", ErrValidation)
	}
	if !finite(in.MinGigAmount) || !finite(in.MaxGigAmount) || in.MinGigAmount < 0 || in.MaxGigAmount < 0 {
		return nil, fmt.Errorf("%w: gig amount bounds must not be negative", ErrValidation)
	}
	if in.MaxGigAmount > 0 && in.MaxGigAmount < in.MinGigAmount {
		return nil, fmt.Errorf("%w: maximum gig amount is below the minimum", ErrValidation)
	}

	var created models.FeeConfiguration
	err := s.transactor.WithTransaction(ctx, func(tx repository.Tx) error {
		latest, err := tx.LatestFeeConfigurationVersion(ctx)
		if err != nil {
			return err
		}
		if err := tx.DeactivateFeeConfigurations(ctx); err != nil {
			return err
		}
		created = models.FeeConfiguration{
			Version:                   latest + 1,
			PlatformCommissionPercent: in.CommissionPercent,
			MinGigAmount:              in.MinGigAmount,
			MaxGigAmount:              in.MaxGigAmount,
			IsActive:                  true,
			CreatedBy:                 adminID,
			Notes:                     in.Notes,
			CreatedAt:                 s.now(),
		}
		return tx.CreateFeeConfiguration(ctx, &created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *SettingsService) SetAutoReleaseDays(ctx context.Context, adminID string, days int) error {
	if days < minAutoReleaseDays || days > maxAutoReleaseDays {
		return fmt.Errorf("%w: auto-release days must be between %d and %d", ErrValidation, minAutoReleaseDays, maxAutoReleaseDays)
	}
	return s.store.UpsertSetting(ctx, &models.PlatformSetting{
		Key:       models.SettingAutoReleaseDays,
		Value:     strconv.Itoa(days),
		UpdatedBy: adminID,
		UpdatedAt: s.now(),
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
