package core

import (
	"context"
	"fmt"
	"strconv"

	"github.com/edvin/dochub/internal/model"
)

// NotificationService owns the admin notifications table.
type NotificationService struct {
	db DB
}

func NewNotificationService(db DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) Notify(ctx context.Context, title, message string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO notifications (title, message, created_at, is_read)
		 VALUES ($1, $2, now(), false)`,
		title, message,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns notifications newest first with cursor pagination.
func (s *NotificationService) List(ctx context.Context, limit int, cursor string) ([]model.Notification, bool, error) {
	query := `SELECT id, title, message, created_at, is_read FROM notifications`
	var args []any
	argIdx := 1

	if cursor != "" {
		cursorID, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		query += fmt.Sprintf(` WHERE id < $%d`, argIdx)
		args = append(args, cursorID)
		argIdx++
	}

	query += ` ORDER BY id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.CreatedAt, &n.IsRead); err != nil {
			return nil, false, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate notifications: %w", err)
	}

	hasMore := len(notifications) > limit
	if hasMore {
		notifications = notifications[:limit]
	}
	return notifications, hasMore, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark notification %d read: %w", id, ErrNotFound)
	}
	return nil
}
