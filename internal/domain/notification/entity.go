// Package notification contains the durable notification model.
// A notification is written to storage first and pushed to the recipient's
// personal group second, so a dropped push never loses the record.
package notification

import (
	"errors"
	"fmt"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationID represents the unique identifier of a notification.
type NotificationID string

// IsValid checks that the ID is non-empty.
func (id NotificationID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id NotificationID) String() string {
	return string(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type defines the kind of notification.
type Type string

const (
	// TypeEnrollment - a student enrolled in a course.
	TypeEnrollment Type = "enrollment"

	// TypeCourseUpdate - course content or settings changed.
	TypeCourseUpdate Type = "course_update"

	// TypeLessonAvailable - a new lesson was published.
	TypeLessonAvailable Type = "lesson_available"

	// TypeAssignmentDue - an assignment deadline approaches.
	TypeAssignmentDue Type = "assignment_due"

	// TypeQuizResult - a quiz attempt was graded.
	TypeQuizResult Type = "quiz_result"

	// TypeCertificateReady - a completion certificate was generated.
	TypeCertificateReady Type = "certificate_ready"

	// TypeForumReply - someone replied in a followed discussion.
	TypeForumReply Type = "forum_reply"

	// TypeAnnouncement - a course or platform announcement.
	TypeAnnouncement Type = "announcement"

	// TypeSystem - a system notification.
	TypeSystem Type = "system"
)

// IsValid checks that the notification type is one of the known values.
func (t Type) IsValid() bool {
	switch t {
	case TypeEnrollment, TypeCourseUpdate, TypeLessonAvailable,
		TypeAssignmentDue, TypeQuizResult, TypeCertificateReady,
		TypeForumReply, TypeAnnouncement, TypeSystem:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type.
func (t Type) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// RELATED REFERENCES
// ══════════════════════════════════════════════════════════════════════════════

// RelatedRefs carries optional references to the entities a notification is
// about. All fields may be empty.
type RelatedRefs struct {
	CourseID     string
	LessonID     string
	DiscussionID string
	ActionURL    string
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Notification represents a durable notification addressed to a single user.
type Notification struct {
	// ID is the unique identifier.
	ID NotificationID

	// Recipient is the user the notification is addressed to.
	Recipient identity.UserID

	// Type is the notification kind.
	Type Type

	// Title is the short headline.
	Title string

	// Message is the notification body.
	Message string

	// Related references the entities the notification is about.
	Related RelatedRefs

	// IsRead marks whether the recipient has read the notification.
	IsRead bool

	// ReadAt is when the notification was read (nil while unread).
	ReadAt *time.Time

	// EmailSent marks whether an email copy was delivered.
	EmailSent bool

	// EmailSentAt is when the email copy was delivered.
	EmailSentAt *time.Time

	// CreatedAt is the creation time.
	CreatedAt time.Time

	// ExpiresAt is when the notification stops being relevant (nil = never).
	ExpiresAt *time.Time
}

// NewParams contains the parameters for creating a notification.
type NewParams struct {
	ID        NotificationID
	Recipient identity.UserID
	Type      Type
	Title     string
	Message   string
	Related   RelatedRefs
	ExpiresAt *time.Time
}

// New creates a new unread notification with validation.
func New(params NewParams) (*Notification, error) {
	if !params.ID.IsValid() {
		return nil, ErrInvalidID
	}
	if !params.Recipient.IsValid() {
		return nil, ErrInvalidRecipient
	}
	if !params.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, params.Type)
	}
	if params.Message == "" {
		return nil, ErrEmptyMessage
	}

	return &Notification{
		ID:        params.ID,
		Recipient: params.Recipient,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Related:   params.Related,
		ExpiresAt: params.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// MarkRead transitions the notification to read. Marking an already-read
// notification is a no-op and reports false.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	t := at.UTC()
	n.ReadAt = &t
	return true
}

// MarkEmailSent records that an email copy was delivered.
func (n *Notification) MarkEmailSent(at time.Time) {
	n.EmailSent = true
	t := at.UTC()
	n.EmailSentAt = &t
}

// IsExpired reports whether the notification has passed its expiry time.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt == nil {
		return false
	}
	return now.After(*n.ExpiresAt)
}

// String returns a compact representation for logging.
func (n *Notification) String() string {
	return fmt.Sprintf("Notification{ID: %s, Type: %s, Recipient: %s, Read: %t}",
		n.ID, n.Type, n.Recipient, n.IsRead)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidID - the notification ID is empty.
	ErrInvalidID = errors.New("invalid notification id: cannot be empty")

	// ErrInvalidRecipient - the recipient ID is empty.
	ErrInvalidRecipient = errors.New("invalid recipient id: cannot be empty")

	// ErrInvalidType - the notification type is unknown.
	ErrInvalidType = errors.New("invalid notification type")

	// ErrEmptyMessage - the notification body is empty.
	ErrEmptyMessage = errors.New("notification message cannot be empty")

	// ErrNotFound - the notification does not exist.
	ErrNotFound = errors.New("notification not found")
)
