package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"GigSafe/internal/middleware"
	"GigSafe/internal/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
	log           *zap.Logger
}

func NewNotificationHandler(notifications *services.NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, log: orNop(log)}
}

// GetNotifications retrieves all notifications for the authenticated user
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	limit := c.QueryInt("limit", 50)
	unreadOnly := c.QueryBool("unread_only", false)

	notifications, err := h.notifications.List(c.UserContext(), userID, unreadOnly, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	unreadCount, err := h.notifications.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
		"unread_count":  unreadCount,
	})
}

// GetUnreadCount returns the count of unread notifications
func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	unreadCount, err := h.notifications.UnreadCount(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"unread_count": unreadCount,
	})
}

// MarkAsRead marks a specific notification as read
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	if err := h.notifications.MarkAsRead(c.UserContext(), middleware.UserID(c), paramID(c)); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message": "Notification marked as read",
	})
}

// MarkAllAsRead marks all notifications as read for the user
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	if err := h.notifications.MarkAllAsRead(c.UserContext(), middleware.UserID(c)); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message": "All notifications marked as read",
	})
}

// DeleteNotification deletes a specific notification
func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	if err := h.notifications.Delete(c.UserContext(), middleware.UserID(c), paramID(c)); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message": "Notification deleted",
	})
}

// DeleteAllRead deletes all read notifications for the user
func (h *NotificationHandler) DeleteAllRead(c *fiber.Ctx) error {
	deleted, err := h.notifications.DeleteAllRead(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(fiber.Map{
		"message": "Read notifications deleted",
		"deleted": deleted,
	})
}
