package routes

import (
	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(notifications fiber.Router, h Handlers) {
	// Get all notifications
	notifications.Get("/", h.Notifications.GetNotifications)

	// Get unread count
	notifications.Get("/unread-count", h.Notifications.GetUnreadCount)

	// Mark all notifications as read
	notifications.Put("/read-all", h.Notifications.MarkAllAsRead)

	// Mark specific notification as read
	notifications.Put("/:id/read", h.Notifications.MarkAsRead)

	// Delete all read notifications
	notifications.Delete("/read-all", h.Notifications.DeleteAllRead)

	// Delete specific notification
	notifications.Delete("/:id", h.Notifications.DeleteNotification)
}
