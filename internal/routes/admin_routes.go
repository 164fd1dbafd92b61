package routes

import (
	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(admin fiber.Router, h Handlers) {
	// Dispute Management
	admin.Get("/disputes", h.Disputes.GetAllDisputes)
	admin.Post("/disputes/:id/resolve", h.Disputes.ResolveDispute)

	// Platform configuration
	admin.Get("/fee-config", h.Admin.GetPlatformSettings)
	admin.Put("/fee-config", h.Admin.SetFeeConfiguration)
	admin.Put("/settings/auto-release", h.Admin.SetAutoReleaseDays)

	// Run the auto-release sweep now instead of waiting for the scheduler
	admin.Post("/auto-release/sweep", h.Admin.RunAutoReleaseSweep)
}
