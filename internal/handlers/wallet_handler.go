package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/middleware"
	"GigSafe/internal/models"
	"GigSafe/internal/services"
)

type WalletHandler struct {
	wallet *services.WalletService
	log    *zap.Logger
}

func NewWalletHandler(wallet *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, log: orNop(log)}
}

// GetWalletBalance retrieves user's wallet and pending balances
func (h *WalletHandler) GetWalletBalance(c *fiber.Ctx) error {
	balance, err := h.wallet.GetWalletBalance(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"balance": balance,
	})
}

// GetPaymentHistory lists earnings and fee entries, newest first
func (h *WalletHandler) GetPaymentHistory(c *fiber.Ctx) error {
	historyType := models.PaymentHistoryType(c.Query("type"))
	limit := c.QueryInt("limit", 50)

	history, err := h.wallet.ListPaymentHistory(c.UserContext(), middleware.UserID(c), historyType, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"history": history,
		"count":   len(history),
	})
}
