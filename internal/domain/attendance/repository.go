package attendance

import (
	"context"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
)

// Repository defines the interface for attendance persistence.
// Implemented by the infrastructure layer.
type Repository interface {
	// Open persists a new attendance span.
	Open(ctx context.Context, s *Span) error

	// CloseOpen sets left_at on the open span of a user in a lesson.
	// Returns the number of rows affected; 0 when no span is open, which
	// keeps repeated disconnect signals idempotent.
	CloseOpen(ctx context.Context, lessonID LessonID, userID identity.UserID, at time.Time) (int64, error)

	// GetOpen returns the open span of a user in a lesson, if any.
	GetOpen(ctx context.Context, lessonID LessonID, userID identity.UserID) (*Span, error)

	// ListByLesson returns all spans recorded for a lesson.
	ListByLesson(ctx context.Context, lessonID LessonID) ([]*Span, error)

	// CloseStale closes spans that have been open longer than maxAge.
	// Covers gateway crashes that never delivered a disconnect signal.
	// Returns the number of spans closed. Run by the maintenance worker.
	CloseStale(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error)
}

// Question is a durable audience question raised during a live lesson.
type Question struct {
	// ID is the unique identifier.
	ID string

	// LessonID is the live lesson the question was asked in.
	LessonID LessonID

	// Author is the user who asked.
	Author identity.UserID

	// Text is the question body.
	Text string

	// Upvotes is the audience upvote count.
	Upvotes int

	// Answered marks questions the presenter has addressed.
	Answered bool

	// CreatedAt is the creation time.
	CreatedAt time.Time
}

// QuestionRepository defines the interface for lesson question persistence.
type QuestionRepository interface {
	// Create persists a new question.
	Create(ctx context.Context, q *Question) error

	// ListByLesson returns questions of a lesson in creation order.
	ListByLesson(ctx context.Context, lessonID LessonID) ([]*Question, error)
}
