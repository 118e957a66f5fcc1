package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
)

// Notifier reads and acknowledges notifications, and mails freshly
// committed ones when a mailer is configured.
type Notifier struct {
	userRepo         repository.UserRepository
	notificationRepo repository.NotificationRepository
	mailer           Mailer
	now              func() time.Time
}

func NewNotifier(database *sql.DB, mailer Mailer) *Notifier {
	return &Notifier{
		userRepo:         repository.NewUserRepository(database),
		notificationRepo: repository.NewNotificationRepository(database),
		mailer:           mailer,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (notifier *Notifier) Unread(ctx context.Context, userID string) ([]models.Notification, error) {
	notifications, err := notifier.notificationRepo.FindUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing unread notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead returns ErrNotFound when the notification does not exist, is
// already read, or belongs to another user.
func (notifier *Notifier) MarkRead(ctx context.Context, userID string, notificationID string) error {
	changed, err := notifier.notificationRepo.MarkRead(ctx, notificationID, userID, notifier.now())
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

func (notifier *Notifier) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := notifier.notificationRepo.MarkAllRead(ctx, userID, notifier.now())
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	return count, nil
}

// Deliver mails each notification to its recipient. It runs after the
// creating transaction has committed; failures are logged only.
func (notifier *Notifier) Deliver(ctx context.Context, notifications []models.Notification) {
	if notifier.mailer == nil {
		return
	}

	for _, notification := range notifications {
		user, err := notifier.userRepo.FindByID(ctx, notification.UserID)
		if err != nil {
			slog.Error("finding notification recipient", "error", err, "notification_id", notification.ID)
			continue
		}
		if err := notifier.mailer.Send(ctx, user.Email, mailSubject(notification.Kind), notification.Message); err != nil {
			slog.Error("mailing notification", "error", err, "notification_id", notification.ID, "kind", notification.Kind)
		}
	}
}

func mailSubject(kind models.NotificationKind) string {
	switch kind {
	case models.NotificationNewTask:
		return "TaskPay: new task"
	case models.NotificationTaskPending:
		return "TaskPay: task waiting for review"
	case models.NotificationTaskApproved:
		return "TaskPay: task approved"
	case models.NotificationTaskRejected:
		return "TaskPay: task rejected"
	case models.NotificationNewReward:
		return "TaskPay: new reward in the shop"
	case models.NotificationNewRedemption:
		return "TaskPay: reward redeemed"
	case models.NotificationRewardDelivered:
		return "TaskPay: reward delivered"
	case models.NotificationRewardRejected:
		return "TaskPay: redemption rejected"
	case models.NotificationPaymentReceived:
		return "TaskPay: payment received"
	case models.NotificationAllowanceGranted:
		return "TaskPay: allowance received"
	}
	return "TaskPay notification"
}

// outbox collects the notifications written inside one transaction so
// they can be delivered once it commits.
type outbox struct {
	notificationRepo repository.NotificationRepository
	memberRepo       repository.MemberRepository
	created          []models.Notification
}

func newOutbox(transaction *sql.Tx) *outbox {
	return &outbox{
		notificationRepo: repository.NewNotificationRepository(transaction),
		memberRepo:       repository.NewMemberRepository(transaction),
	}
}

func (box *outbox) notify(ctx context.Context, userID string, kind models.NotificationKind, message string) error {
	notification, err := box.notificationRepo.Create(ctx, models.Notification{
		UserID:  userID,
		Kind:    kind,
		Message: message,
	})
	if err != nil {
		return err
	}
	box.created = append(box.created, notification)
	return nil
}

// notifyFamily notifies every member of the family holding role.
func (box *outbox) notifyFamily(ctx context.Context, familyID string, role models.Role, kind models.NotificationKind, message string) error {
	members, err := box.memberRepo.FindByFamily(ctx, familyID, role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if err := box.notify(ctx, member.UserID, kind, message); err != nil {
			return err
		}
	}
	return nil
}
