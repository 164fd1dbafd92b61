package routes

import (
	"github.com/gofiber/fiber/v2"

	"GigSafe/internal/handlers"
	"GigSafe/internal/middleware"
)

type Handlers struct {
	Gigs          *handlers.GigHandler
	Escrow        *handlers.EscrowHandler
	Disputes      *handlers.DisputeHandler
	Files         *handlers.FileHandler
	Wallet        *handlers.WalletHandler
	Notifications *handlers.NotificationHandler
	Admin         *handlers.AdminHandler
}

func SetupRoutes(app *fiber.App, h Handlers, jwtSecret string) {
	protected := middleware.Protected(jwtSecret)

	// Health check
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "GigSafe",
		})
	})

	SetupGigRoutes(app.Group("/api/gigs", protected), h)

	// Application lifecycle: status, funding, completion and disputes
	applications := app.Group("/api/applications", protected)
	applications.Put("/:id/status", h.Gigs.UpdateApplicationStatus)
	SetupEscrowRoutes(applications, h)
	SetupDisputeRoutes(applications, h)

	SetupWalletRoutes(app.Group("/api/wallet", protected), h)
	SetupNotificationRoutes(app.Group("/api/notifications", protected), h)
	SetupAdminRoutes(app.Group("/api/admin", protected, middleware.AdminOnly()), h)
}
