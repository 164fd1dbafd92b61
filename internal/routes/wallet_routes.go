package routes

import (
	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(wallet fiber.Router, h Handlers) {
	// Wallet balance
	wallet.Get("/balance", h.Wallet.GetWalletBalance)

	// Earnings and fee history
	wallet.Get("/history", h.Wallet.GetPaymentHistory)
}
