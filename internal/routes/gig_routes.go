package routes

import (
	"github.com/gofiber/fiber/v2"
)

func SetupGigRoutes(gigs fiber.Router, h Handlers) {
	// Post a gig (employer)
	gigs.Post("/", h.Gigs.CreateGig)

	// Apply to a gig (worker)
	gigs.Post("/:id/apply", h.Gigs.ApplyToGig)
}
