package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/middleware"
	"GigSafe/internal/services"
)

type FundApplicationRequest struct {
	ProviderTransactionID string  `json:"provider_transaction_id" validate:"required"`
	ProviderAllocationID  string  `json:"provider_allocation_id"`
	Amount                float64 `json:"amount" validate:"gte=0"`
}

// EscrowHandler covers the funded part of an application's life: funding,
// the worker's completion request and the employer's approval.
type EscrowHandler struct {
	funding    *services.FundingService
	completion *services.CompletionService
	release    *services.EscrowReleaseService
	log        *zap.Logger
}

func NewEscrowHandler(funding *services.FundingService, completion *services.CompletionService, release *services.EscrowReleaseService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{funding: funding, completion: completion, release: release, log: orNop(log)}
}

// FundApplication records the employer's escrow payment once the provider
// confirms the funds
func (h *EscrowHandler) FundApplication(c *fiber.Ctx) error {
	req := new(FundApplicationRequest)
	if err := parseBody(c, req); err != nil {
		return badRequest(c, err)
	}

	payment, err := h.funding.FundApplication(c.UserContext(), services.FundRequest{
		ApplicationID:         paramID(c),
		EmployerID:            middleware.UserID(c),
		ProviderTransactionID: req.ProviderTransactionID,
		ProviderAllocationID:  req.ProviderAllocationID,
		Amount:                req.Amount,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message": "Escrow funded. The worker can start now.",
		"payment": payment,
	})
}

// RequestCompletion lets the worker mark the job as done
func (h *EscrowHandler) RequestCompletion(c *fiber.Ctx) error {
	app, err := h.completion.RequestCompletionByWorker(c.UserContext(), paramID(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":         "Completion requested. The employer has been notified.",
		"auto_release_at": app.CompletionAutoReleaseAt,
		"application":     app,
	})
}

// ApproveCompletion releases the escrow to the worker
func (h *EscrowHandler) ApproveCompletion(c *fiber.Ctx) error {
	result, err := h.release.ApproveCompletion(c.UserContext(), paramID(c), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message":                    result.Message,
		"net_amount":                 result.NetAmount,
		"platform_commission":        result.PlatformCommission,
		"tradesafe_payout_triggered": result.TradeSafePayoutTriggered,
	})
}
