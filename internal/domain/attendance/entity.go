// Package attendance contains durable join/leave spans for live lessons.
// A span opens when a user joins the lesson group and closes on disconnect;
// closing is idempotent because abrupt transports can signal disconnect twice.
package attendance

import (
	"errors"
	"fmt"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// SpanID represents the unique identifier of an attendance span.
type SpanID string

// IsValid checks that the ID is non-empty.
func (id SpanID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id SpanID) String() string {
	return string(id)
}

// LessonID represents the unique identifier of a live lesson.
type LessonID string

// IsValid checks that the ID is non-empty.
func (id LessonID) IsValid() bool {
	return len(id) > 0
}

// String returns the string representation of the ID.
func (id LessonID) String() string {
	return string(id)
}

// Span is the join-to-leave interval of one user in one live lesson.
type Span struct {
	// ID is the unique identifier.
	ID SpanID

	// LessonID is the live lesson attended.
	LessonID LessonID

	// UserID is the attendee.
	UserID identity.UserID

	// JoinedAt is when the user joined the lesson group.
	JoinedAt time.Time

	// LeftAt is when the user left (nil while still present).
	LeftAt *time.Time
}

// NewSpan opens a new attendance span at the given time.
func NewSpan(id SpanID, lessonID LessonID, userID identity.UserID, joinedAt time.Time) (*Span, error) {
	if !id.IsValid() {
		return nil, ErrInvalidSpanID
	}
	if !lessonID.IsValid() {
		return nil, ErrInvalidLessonID
	}
	if !userID.IsValid() {
		return nil, ErrInvalidUserID
	}
	return &Span{
		ID:       id,
		LessonID: lessonID,
		UserID:   userID,
		JoinedAt: joinedAt.UTC(),
	}, nil
}

// Close sets the leave time. Closing an already-closed span is a no-op and
// reports false, which keeps disconnect cleanup idempotent.
func (s *Span) Close(at time.Time) bool {
	if s.LeftAt != nil {
		return false
	}
	t := at.UTC()
	s.LeftAt = &t
	return true
}

// IsOpen reports whether the attendee is still counted as present.
func (s *Span) IsOpen() bool {
	return s.LeftAt == nil
}

// Duration returns the span length, using now for still-open spans.
func (s *Span) Duration(now time.Time) time.Duration {
	if s.LeftAt != nil {
		return s.LeftAt.Sub(s.JoinedAt)
	}
	return now.Sub(s.JoinedAt)
}

// String returns a compact representation for logging.
func (s *Span) String() string {
	return fmt.Sprintf("Span{ID: %s, Lesson: %s, User: %s, Open: %t}",
		s.ID, s.LessonID, s.UserID, s.IsOpen())
}

var (
	// ErrInvalidSpanID - the span ID is empty.
	ErrInvalidSpanID = errors.New("invalid attendance span id: cannot be empty")

	// ErrInvalidLessonID - the lesson ID is empty.
	ErrInvalidLessonID = errors.New("invalid lesson id: cannot be empty")

	// ErrInvalidUserID - the user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id: cannot be empty")

	// ErrNotFound - the span does not exist.
	ErrNotFound = errors.New("attendance span not found")
)
