package routes

import (
	"github.com/gofiber/fiber/v2"
)

func SetupDisputeRoutes(applications fiber.Router, h Handlers) {
	// Dispute a completion request (employer)
	applications.Post("/:id/completion/dispute", h.Disputes.DisputeCompletion)

	// Upload evidence file
	applications.Post("/:id/completion/evidence", h.Files.UploadEvidence)
}
