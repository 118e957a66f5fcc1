package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification models.Notification) (models.Notification, error)
	FindUnread(ctx context.Context, userID string) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string, userID string, readAt time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error)
}

type SQLiteNotificationRepository struct {
	database database.DBTX
}

func NewNotificationRepository(db database.DBTX) *SQLiteNotificationRepository {
	return &SQLiteNotificationRepository{database: db}
}

func (repository *SQLiteNotificationRepository) Create(ctx context.Context, notification models.Notification) (models.Notification, error) {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	if notification.SentAt.IsZero() {
		notification.SentAt = time.Now().UTC()
	}

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO notifications (id, user_id, kind, message, sent_at) VALUES (?, ?, ?, ?, ?)",
		notification.ID, notification.UserID, notification.Kind, notification.Message, notification.SentAt,
	)
	if err != nil {
		return models.Notification{}, fmt.Errorf("creating notification: %w", err)
	}
	return notification, nil
}

func (repository *SQLiteNotificationRepository) FindUnread(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT id, user_id, kind, message, sent_at, read_at FROM notifications
		WHERE user_id = ? AND read_at IS NULL ORDER BY sent_at DESC, rowid DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var notification models.Notification
		if err := rows.Scan(&notification.ID, &notification.UserID, &notification.Kind, &notification.Message, &notification.SentAt, &notification.ReadAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

// MarkRead only touches a notification owned by userID.
func (repository *SQLiteNotificationRepository) MarkRead(ctx context.Context, id string, userID string, readAt time.Time) (bool, error) {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL",
		readAt, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("marking notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking read notification: %w", err)
	}
	return affected == 1, nil
}

func (repository *SQLiteNotificationRepository) MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error) {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL",
		readAt, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking read notifications: %w", err)
	}
	return int(affected), nil
}
