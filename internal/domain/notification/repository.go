package notification

import (
	"context"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// Repository defines the interface for notification persistence.
// This interface is implemented by the infrastructure layer.
// The domain layer has no knowledge of the actual storage mechanism.
type Repository interface {
	// Create persists a new notification.
	Create(ctx context.Context, n *Notification) error

	// GetByID returns a notification by ID.
	GetByID(ctx context.Context, id NotificationID) (*Notification, error)

	// ListUnread returns up to limit unread notifications for a recipient,
	// newest first. This backs backlog delivery on connection open.
	ListUnread(ctx context.Context, recipient identity.UserID, limit int) ([]*Notification, error)

	// CountUnread returns the number of unread notifications for a recipient.
	CountUnread(ctx context.Context, recipient identity.UserID) (int, error)

	// MarkRead sets is_read/read_at on a single notification, scoped to the
	// recipient so a user cannot mark someone else's row. Returns the number
	// of rows affected (0 when already read or not found; never an error for
	// either case).
	MarkRead(ctx context.Context, id NotificationID, recipient identity.UserID, at time.Time) (int64, error)

	// MarkAllRead sets is_read/read_at on every unread notification of the
	// recipient. Returns the number of rows affected; invoking it with zero
	// unread rows affects 0 rows and is not an error.
	MarkAllRead(ctx context.Context, recipient identity.UserID, at time.Time) (int64, error)

	// MarkEmailSent records email delivery for a notification.
	MarkEmailSent(ctx context.Context, id NotificationID, at time.Time) error

	// DeleteExpired removes notifications whose expires_at has passed.
	// Returns the number of rows removed. Run by the maintenance worker.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
