package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

// Mailer delivers a notification by email.
type Mailer interface {
	SendNotificationEmail(ctx context.Context, to, subject, message string) error
}

type NotificationService struct {
	store  repository.NotificationStore
	users  repository.Reader
	mailer Mailer
	log    *zap.Logger
	now    func() time.Time
}

func NewNotificationService(store repository.Store, mailer Mailer, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{store: store, users: store, mailer: mailer, log: log, now: time.Now}
}

// CreateNotification stores an in-app notification and, when a mailer is
// configured, emails the same message to the user.
func (s *NotificationService) CreateNotification(ctx context.Context, userID string, notifType models.NotificationType, title, message string, data map[string]any) error {
	if s == nil {
		return nil
	}

	var dataJSON string
	if data != nil {
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal notification data: %w", err)
		}
		dataJSON = string(jsonBytes)
	}

	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
		Data:    dataJSON,
	}
	if err := s.store.CreateNotification(ctx, &notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if s.mailer == nil {
		return nil
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil || user.Email == "" {
		return nil
	}
	if err := s.mailer.SendNotificationEmail(ctx, user.Email, title, message); err != nil {
		s.log.Warn("notification email failed", zap.String("user_id", userID), zap.String("type", string(notifType)), zap.Error(err))
	}
	return nil
}

func (s *NotificationService) NotifyApplicationReceived(ctx context.Context, employerID string, gig models.Gig, app models.Application) error {
	return s.CreateNotification(ctx, employerID,
		models.NotificationApplicationReceived,
		"New Application",
		fmt.Sprintf("A worker applied to %q with a proposed rate of R%.2f", gig.Title, app.ProposedRate),
		map[string]any{"gig_id": gig.ID, "application_id": app.ID},
	)
}

func (s *NotificationService) NotifyApplicationAccepted(ctx context.Context, workerID string, gig models.Gig, applicationID string) error {
	return s.CreateNotification(ctx, workerID,
		models.NotificationApplicationAccepted,
		"Application Accepted",
		fmt.Sprintf("You have been selected for %q. Work can start once the escrow is funded.", gig.Title),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID},
	)
}

func (s *NotificationService) NotifyApplicationRejected(ctx context.Context, workerID string, gig models.Gig, applicationID string) error {
	return s.CreateNotification(ctx, workerID,
		models.NotificationApplicationRejected,
		"Application Not Selected",
		fmt.Sprintf("Your application for %q was not selected.", gig.Title),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID},
	)
}

func (s *NotificationService) NotifyEscrowFunded(ctx context.Context, workerID string, gig models.Gig, applicationID string, amount float64) error {
	return s.CreateNotification(ctx, workerID,
		models.NotificationEscrowFunded,
		"Escrow Funded",
		fmt.Sprintf("R%.2f is now held in escrow for %q. You can start working.", amount, gig.Title),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID, "amount": amount},
	)
}

func (s *NotificationService) NotifyCompletionRequested(ctx context.Context, employerID string, gig models.Gig, applicationID string, autoReleaseAt time.Time) error {
	return s.CreateNotification(ctx, employerID,
		models.NotificationCompletionRequested,
		"Completion Requested",
		fmt.Sprintf("The worker marked %q as complete. Payment will be released automatically on %s unless you dispute it.",
			gig.Title, autoReleaseAt.Format("2 Jan 2006")),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID, "auto_release_at": autoReleaseAt},
	)
}

func (s *NotificationService) NotifyCompletionDisputed(ctx context.Context, workerID string, gig models.Gig, applicationID, reason string) error {
	return s.CreateNotification(ctx, workerID,
		models.NotificationCompletionDisputed,
		"Completion Disputed",
		fmt.Sprintf("The employer disputed completion of %q. Reason: %s", gig.Title, reason),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID},
	)
}

func (s *NotificationService) NotifyPaymentReleased(ctx context.Context, workerID string, gig models.Gig, applicationID string, net float64) error {
	return s.CreateNotification(ctx, workerID,
		models.NotificationPaymentReleased,
		"Payment Released",
		fmt.Sprintf("R%.2f for %q has been credited to your wallet.", net, gig.Title),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID, "amount": net},
	)
}

func (s *NotificationService) NotifyDisputeResolved(ctx context.Context, userID string, gig models.Gig, applicationID string, resolution models.CompletionResolution) error {
	outcome := "in favour of the worker. Payment has been released."
	if resolution == models.ResolutionRejected {
		outcome = "in favour of the employer. The escrow stays held while the work is remedied."
	}
	return s.CreateNotification(ctx, userID,
		models.NotificationDisputeResolved,
		"Dispute Resolved",
		fmt.Sprintf("The dispute on %q was resolved %s", gig.Title, outcome),
		map[string]any{"gig_id": gig.ID, "application_id": applicationID, "resolution": resolution},
	)
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	return s.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id, s.now())
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.store.MarkAllNotificationsRead(ctx, userID, s.now())
}

func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteNotification(ctx, userID, id)
}

// DeleteAllRead clears the user's read notifications.
func (s *NotificationService) DeleteAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.DeleteReadNotifications(ctx, userID)
}

// bestEffort logs a failed post-commit side effect without failing the caller.
func bestEffort(log *zap.Logger, what string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	log.Warn(what+" failed", append(fields, zap.Error(err))...)
}
