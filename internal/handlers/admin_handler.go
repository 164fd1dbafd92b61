package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/middleware"
	"GigSafe/internal/services"
)

type SetFeeConfigurationRequest struct {
	CommissionPercent float64 `json:"commission_percent" validate:"gte=0,lte=100"`
	MinGigAmount      float64 `json:"min_gig_amount" validate:"gte=0"`
	MaxGigAmount      float64 `json:"max_gig_amount" validate:"gte=0"`
	Notes             string  `json:"notes" validate:"max=1000"`
}

type SetAutoReleaseDaysRequest struct {
	Days int `json:"days" validate:"required,min=1,max=90"`
}

// AdminHandler serves platform configuration and the manual auto-release
// sweep. Routes are behind AdminOnly.
type AdminHandler struct {
	settings   *services.SettingsService
	release    *services.EscrowReleaseService
	sweepBatch int
	log        *zap.Logger
}

func NewAdminHandler(settings *services.SettingsService, release *services.EscrowReleaseService, sweepBatch int, log *zap.Logger) *AdminHandler {
	return &AdminHandler{settings: settings, release: release, sweepBatch: sweepBatch, log: orNop(log)}
}

// GetPlatformSettings returns the active fee configuration and auto-release window
func (h *AdminHandler) GetPlatformSettings(c *fiber.Ctx) error {
	cfg, err := h.settings.ActiveFeeConfiguration(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}
	days, err := h.settings.AutoReleaseDays(c.UserContext())
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"fee_configuration": cfg,
		"auto_release_days": days,
	})
}

// SetFeeConfiguration publishes a new fee configuration version
func (h *AdminHandler) SetFeeConfiguration(c *fiber.Ctx) error {
	req := new(SetFeeConfigurationRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	cfg, err := h.settings.SetFeeConfiguration(c.UserContext(), middleware.UserID(c), services.FeeConfigurationInput{
		CommissionPercent: req.CommissionPercent,
		MinGigAmount:      req.MinGigAmount,
		MaxGigAmount:      req.MaxGigAmount,
		Notes:             req.Notes,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("fee configuration updated",
		zap.String("admin_id", middleware.UserID(c)),
		zap.Int("version", cfg.Version),
		zap.Float64("commission_percent", cfg.PlatformCommissionPercent),
	)
	return c.JSON(fiber.Map{
		"message":           "Fee configuration updated",
		"fee_configuration": cfg,
	})
}

// SetAutoReleaseDays changes how long a completion request waits before auto-release
func (h *AdminHandler) SetAutoReleaseDays(c *fiber.Ctx) error {
	req := new(SetAutoReleaseDaysRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	if err := h.settings.SetAutoReleaseDays(c.UserContext(), middleware.UserID(c), req.Days); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":           "Auto-release window updated",
		"auto_release_days": req.Days,
	})
}

// RunAutoReleaseSweep releases every completion past its deadline now
func (h *AdminHandler) RunAutoReleaseSweep(c *fiber.Ctx) error {
	summary, err := h.release.SweepAutoReleases(c.UserContext(), h.sweepBatch)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message": "Auto-release sweep finished",
		"summary": summary,
	})
}
