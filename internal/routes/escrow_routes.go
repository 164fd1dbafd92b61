package routes

import (
	"github.com/gofiber/fiber/v2"
)

func SetupEscrowRoutes(applications fiber.Router, h Handlers) {
	// Fund the escrow once the provider holds the money (employer)
	applications.Post("/:id/fund", h.Escrow.FundApplication)

	// Mark the work as done (worker)
	applications.Post("/:id/completion/request", h.Escrow.RequestCompletion)

	// Approve and release payment (employer)
	applications.Post("/:id/completion/approve", h.Escrow.ApproveCompletion)
}
