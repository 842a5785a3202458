// Package notify implements the notification delivery flow: durable write
// first, real-time push second, email third. Only the write can fail the
// operation; push and email failures are logged and swallowed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/domain/notification"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/email"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// BacklogLimit is the number of unread notifications replayed to a personal
// channel when it opens, newest first.
const BacklogLimit = 10

// ══════════════════════════════════════════════════════════════════════════════
// WIRE PAYLOADS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationPayload is the frame pushed to personal channels. The outer
// type names the event; the nested object carries the notification, whose
// own "type" is the notification kind.
type NotificationPayload struct {
	Type         string           `json:"type"`
	Notification NotificationBody `json:"notification"`
}

// NotificationBody is the notification object inside a push frame.
type NotificationBody struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	CourseID     string `json:"course_id,omitempty"`
	LessonID     string `json:"lesson_id,omitempty"`
	DiscussionID string `json:"discussion_id,omitempty"`
	ActionURL    string `json:"action_url,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// UnreadCountPayload reports the unread total after a mark-read operation.
type UnreadCountPayload struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// encodeNotification serializes a notification for the personal channel.
func encodeNotification(n *notification.Notification) ([]byte, error) {
	return json.Marshal(NotificationPayload{
		Type: "notification",
		Notification: NotificationBody{
			ID:           n.ID.String(),
			Type:         n.Type.String(),
			Title:        n.Title,
			Message:      n.Message,
			CourseID:     n.Related.CourseID,
			LessonID:     n.Related.LessonID,
			DiscussionID: n.Related.DiscussionID,
			ActionURL:    n.Related.ActionURL,
			CreatedAt:    n.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Directory supplies the user and enrollment lookups the service needs.
type Directory interface {
	GetIdentity(ctx context.Context, userID identity.UserID) (identity.Identity, error)
	ListEnrolledActive(ctx context.Context, courseID string) ([]identity.UserID, error)
	GetEmail(ctx context.Context, userID identity.UserID) (string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Service coordinates notification persistence and delivery.
type Service struct {
	repo     notification.Repository
	registry messaging.Registry
	dir      Directory
	sender   email.Sender
	logger   *slog.Logger
}

// Config contains the dependencies for Service.
type Config struct {
	Repository notification.Repository
	Registry   messaging.Registry
	Directory  Directory

	// Sender delivers email copies. Nil disables the email channel.
	Sender email.Sender

	Logger *slog.Logger
}

// NewService creates a notification service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Repository == nil {
		return nil, errors.New("notify: repository is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("notify: registry is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("notify: directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Service{
		repo:     cfg.Repository,
		registry: cfg.Registry,
		dir:      cfg.Directory,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
	}, nil
}

// CreateParams contains the data for creating a notification.
type CreateParams struct {
	Recipient identity.UserID
	Type      notification.Type
	Title     string
	Message   string
	Related   notification.RelatedRefs
	ExpiresAt *time.Time

	// SendEmail requests an email copy alongside the real-time push.
	SendEmail bool
}

// Create writes a notification and pushes it to the recipient's personal
// group. The write is the commit point: a returned error means nothing was
// stored; once stored, push and email failures only log.
func (s *Service) Create(ctx context.Context, params CreateParams) (*notification.Notification, error) {
	n, err := notification.New(notification.NewParams{
		ID:        notification.NotificationID(uuid.NewString()),
		Recipient: params.Recipient,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Related:   params.Related,
		ExpiresAt: params.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("notify: store notification: %w", err)
	}

	s.push(ctx, n)

	if params.SendEmail && s.sender != nil {
		s.sendEmailCopy(ctx, n)
	}

	return n, nil
}

// BulkNotifyResult reports the outcome of a course-wide notification.
type BulkNotifyResult struct {
	Recipients int
	Stored     int
	Delivered  int
}

// BulkNotify creates one notification per actively enrolled student of a
// course. Per-recipient failures are logged and skipped; one student's
// failure never blocks the rest.
func (s *Service) BulkNotify(ctx context.Context, courseID string, params CreateParams) (BulkNotifyResult, error) {
	recipients, err := s.dir.ListEnrolledActive(ctx, courseID)
	if err != nil {
		return BulkNotifyResult{}, fmt.Errorf("notify: list enrollments: %w", err)
	}

	result := BulkNotifyResult{Recipients: len(recipients)}
	for _, recipient := range recipients {
		p := params
		p.Recipient = recipient
		if p.Related.CourseID == "" {
			p.Related.CourseID = courseID
		}

		if _, err := s.Create(ctx, p); err != nil {
			s.logger.Error("bulk notify: skipping recipient",
				"course", courseID, "recipient", recipient, "error", err)
			continue
		}
		result.Stored++
	}
	result.Delivered = result.Stored

	return result, nil
}

// Backlog returns the recipient's unread notifications encoded for the wire,
// newest first, capped at BacklogLimit. Sent to a personal channel when it
// opens so a reconnecting client catches up before live pushes resume.
func (s *Service) Backlog(ctx context.Context, recipient identity.UserID) ([][]byte, error) {
	unread, err := s.repo.ListUnread(ctx, recipient, BacklogLimit)
	if err != nil {
		return nil, fmt.Errorf("notify: load backlog: %w", err)
	}

	payloads := make([][]byte, 0, len(unread))
	for _, n := range unread {
		data, err := encodeNotification(n)
		if err != nil {
			s.logger.Error("backlog: encode failed", "notification", n.ID, "error", err)
			continue
		}
		payloads = append(payloads, data)
	}

	return payloads, nil
}

// MarkRead marks one notification read and pushes the fresh unread count to
// the recipient's personal group. Marking an already-read or unknown
// notification is a no-op.
func (s *Service) MarkRead(ctx context.Context, id notification.NotificationID, recipient identity.UserID) error {
	if _, err := s.repo.MarkRead(ctx, id, recipient, time.Now().UTC()); err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}

	s.pushUnreadCount(ctx, recipient)
	return nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *Service) MarkAllRead(ctx context.Context, recipient identity.UserID) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, recipient, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("notify: mark all read: %w", err)
	}

	s.pushUnreadCount(ctx, recipient)
	return count, nil
}

// ListUnread returns the recipient's unread notifications, newest first.
func (s *Service) ListUnread(ctx context.Context, recipient identity.UserID, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = BacklogLimit
	}
	return s.repo.ListUnread(ctx, recipient, limit)
}

// ─────────────────────────────────────────────────────────────────────────────
// Delivery paths
// ─────────────────────────────────────────────────────────────────────────────

// push broadcasts to the recipient's personal group. No members means the
// recipient is offline; the stored row is their catch-up path.
func (s *Service) push(ctx context.Context, n *notification.Notification) {
	data, err := encodeNotification(n)
	if err != nil {
		s.logger.Error("push: encode failed", "notification", n.ID, "error", err)
		return
	}

	group := access.PersonalGroup(n.Recipient)
	delivered := s.registry.Broadcast(ctx, group, data)
	s.logger.Debug("notification pushed",
		"notification", n.ID, "recipient", n.Recipient, "delivered", delivered)
}

func (s *Service) pushUnreadCount(ctx context.Context, recipient identity.UserID) {
	count, err := s.repo.CountUnread(ctx, recipient)
	if err != nil {
		s.logger.Error("push unread count: count failed", "recipient", recipient, "error", err)
		return
	}

	data, err := json.Marshal(UnreadCountPayload{Type: "unread_count", Count: count})
	if err != nil {
		return
	}

	s.registry.Broadcast(ctx, access.PersonalGroup(recipient), data)
}

// sendEmailCopy delivers the email copy and records it. Failures log only.
func (s *Service) sendEmailCopy(ctx context.Context, n *notification.Notification) {
	id, err := s.dir.GetIdentity(ctx, n.Recipient)
	if err != nil {
		s.logger.Error("email copy: identity lookup failed", "recipient", n.Recipient, "error", err)
		return
	}

	addr, err := s.dir.GetEmail(ctx, n.Recipient)
	if err != nil {
		s.logger.Error("email copy: email lookup failed", "recipient", n.Recipient, "error", err)
		return
	}

	msg := email.Message{
		ToName:    id.Name,
		ToAddress: addr,
		Subject:   n.Title,
		TextBody:  n.Message,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("email copy: send failed", "notification", n.ID, "error", err)
		return
	}

	if err := s.repo.MarkEmailSent(ctx, n.ID, time.Now().UTC()); err != nil {
		s.logger.Error("email copy: record failed", "notification", n.ID, "error", err)
	}
}
