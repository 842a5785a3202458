package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// NotificationRepository implements notification.Repository for PostgreSQL.
type NotificationRepository struct {
	conn *Connection
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(conn *Connection) *NotificationRepository {
	return &NotificationRepository{conn: conn}
}

const notificationColumns = `
	id, recipient_id, type, title, message,
	course_id, lesson_id, discussion_id, action_url,
	is_read, read_at, email_sent, email_sent_at, created_at, expires_at
`

// Create persists a new notification.
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `
		INSERT INTO notifications (
			id, recipient_id, type, title, message,
			course_id, lesson_id, discussion_id, action_url,
			is_read, read_at, email_sent, email_sent_at, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.conn.Exec(ctx, query,
		n.ID.String(),
		n.Recipient.String(),
		n.Type.String(),
		n.Title,
		n.Message,
		nullIfEmpty(n.Related.CourseID),
		nullIfEmpty(n.Related.LessonID),
		nullIfEmpty(n.Related.DiscussionID),
		n.Related.ActionURL,
		n.IsRead,
		n.ReadAt,
		n.EmailSent,
		n.EmailSentAt,
		n.CreatedAt,
		n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// GetByID returns a notification by ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id notification.NotificationID) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id.String())
	return r.scanNotification(row)
}

// ListUnread returns up to limit unread notifications for a recipient, newest first.
func (r *NotificationRepository) ListUnread(ctx context.Context, recipient identity.UserID, limit int) ([]*notification.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1 AND is_read = FALSE
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, recipient.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	defer rows.Close()

	var result []*notification.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}

	return result, rows.Err()
}

// CountUnread returns the number of unread notifications for a recipient.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipient identity.UserID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE`

	var count int
	if err := r.conn.QueryRow(ctx, query, recipient.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// MarkRead sets is_read on a single notification, scoped to the recipient.
// Returns rows affected; 0 means already read or not owned by the recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id notification.NotificationID, recipient identity.UserID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $3
		WHERE id = $1 AND recipient_id = $2 AND is_read = FALSE
	`

	tag, err := r.conn.Exec(ctx, query, id.String(), recipient.String(), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notification read: %w", err)
	}

	return tag.RowsAffected(), nil
}

// MarkAllRead sets is_read on every unread notification of the recipient.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient identity.UserID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2
		WHERE recipient_id = $1 AND is_read = FALSE
	`

	tag, err := r.conn.Exec(ctx, query, recipient.String(), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}

	return tag.RowsAffected(), nil
}

// MarkEmailSent records email delivery for a notification.
func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id notification.NotificationID, at time.Time) error {
	query := `
		UPDATE notifications
		SET email_sent = TRUE, email_sent_at = $2
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query, id.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}

	return nil
}

// DeleteExpired removes notifications whose expires_at has passed.
func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < $1`

	tag, err := r.conn.Exec(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *NotificationRepository) scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n            notification.Notification
		id           string
		recipient    string
		typ          string
		courseID     *string
		lessonID     *string
		discussionID *string
	)

	err := row.Scan(
		&id,
		&recipient,
		&typ,
		&n.Title,
		&n.Message,
		&courseID,
		&lessonID,
		&discussionID,
		&n.Related.ActionURL,
		&n.IsRead,
		&n.ReadAt,
		&n.EmailSent,
		&n.EmailSentAt,
		&n.CreatedAt,
		&n.ExpiresAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}

	n.ID = notification.NotificationID(id)
	n.Recipient = identity.UserID(recipient)
	n.Type = notification.Type(typ)
	n.Related.CourseID = derefOrEmpty(courseID)
	n.Related.LessonID = derefOrEmpty(lessonID)
	n.Related.DiscussionID = derefOrEmpty(discussionID)

	return &n, nil
}

// nullIfEmpty maps empty strings to NULL for nullable UUID columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
