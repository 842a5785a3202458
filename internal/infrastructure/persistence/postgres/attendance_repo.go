package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lumena-hub/lumena-platform/internal/domain/attendance"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements attendance.Repository for PostgreSQL.
type AttendanceRepository struct {
	conn *Connection
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn *Connection) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// Open persists a new attendance span.
func (r *AttendanceRepository) Open(ctx context.Context, s *attendance.Span) error {
	query := `
		INSERT INTO attendance_records (id, lesson_id, user_id, joined_at, left_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID.String(),
		s.LessonID.String(),
		s.UserID.String(),
		s.JoinedAt,
		s.LeftAt,
	)
	if err != nil {
		return fmt.Errorf("failed to open attendance span: %w", err)
	}

	return nil
}

// CloseOpen sets left_at on the open span of a user in a lesson.
// Returns rows affected; 0 keeps repeated disconnect signals idempotent.
func (r *AttendanceRepository) CloseOpen(ctx context.Context, lessonID attendance.LessonID, userID identity.UserID, at time.Time) (int64, error) {
	query := `
		UPDATE attendance_records
		SET left_at = $3
		WHERE lesson_id = $1 AND user_id = $2 AND left_at IS NULL
	`

	tag, err := r.conn.Exec(ctx, query, lessonID.String(), userID.String(), at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to close attendance span: %w", err)
	}

	return tag.RowsAffected(), nil
}

// GetOpen returns the open span of a user in a lesson, if any.
func (r *AttendanceRepository) GetOpen(ctx context.Context, lessonID attendance.LessonID, userID identity.UserID) (*attendance.Span, error) {
	query := `
		SELECT id, lesson_id, user_id, joined_at, left_at
		FROM attendance_records
		WHERE lesson_id = $1 AND user_id = $2 AND left_at IS NULL
		ORDER BY joined_at DESC
		LIMIT 1
	`

	row := r.conn.QueryRow(ctx, query, lessonID.String(), userID.String())
	return r.scanSpan(row)
}

// ListByLesson returns all spans recorded for a lesson.
func (r *AttendanceRepository) ListByLesson(ctx context.Context, lessonID attendance.LessonID) ([]*attendance.Span, error) {
	query := `
		SELECT id, lesson_id, user_id, joined_at, left_at
		FROM attendance_records
		WHERE lesson_id = $1
		ORDER BY joined_at ASC
	`

	rows, err := r.conn.Query(ctx, query, lessonID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance spans: %w", err)
	}
	defer rows.Close()

	var result []*attendance.Span
	for rows.Next() {
		s, err := r.scanSpan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	return result, rows.Err()
}

// CloseStale closes spans that have been open longer than maxAge. Covers
// gateway crashes that never delivered a disconnect signal.
func (r *AttendanceRepository) CloseStale(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-maxAge)

	query := `
		UPDATE attendance_records
		SET left_at = $1
		WHERE left_at IS NULL AND joined_at < $2
	`

	tag, err := r.conn.Exec(ctx, query, now.UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale attendance spans: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *AttendanceRepository) scanSpan(row pgx.Row) (*attendance.Span, error) {
	var (
		s        attendance.Span
		id       string
		lessonID string
		userID   string
	)

	err := row.Scan(&id, &lessonID, &userID, &s.JoinedAt, &s.LeftAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, attendance.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan attendance span: %w", err)
	}

	s.ID = attendance.SpanID(id)
	s.LessonID = attendance.LessonID(lessonID)
	s.UserID = identity.UserID(userID)

	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSON QUESTION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// QuestionRepository implements attendance.QuestionRepository for PostgreSQL.
type QuestionRepository struct {
	conn *Connection
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(conn *Connection) *QuestionRepository {
	return &QuestionRepository{conn: conn}
}

// Create persists a new lesson question.
func (r *QuestionRepository) Create(ctx context.Context, q *attendance.Question) error {
	query := `
		INSERT INTO lesson_questions (id, lesson_id, author_id, text, upvotes, answered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		q.ID,
		q.LessonID.String(),
		q.Author.String(),
		q.Text,
		q.Upvotes,
		q.Answered,
		q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lesson question: %w", err)
	}

	return nil
}

// ListByLesson returns questions of a lesson in creation order.
func (r *QuestionRepository) ListByLesson(ctx context.Context, lessonID attendance.LessonID) ([]*attendance.Question, error) {
	query := `
		SELECT id, lesson_id, author_id, text, upvotes, answered, created_at
		FROM lesson_questions
		WHERE lesson_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.conn.Query(ctx, query, lessonID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson questions: %w", err)
	}
	defer rows.Close()

	var result []*attendance.Question
	for rows.Next() {
		var (
			q        attendance.Question
			lesson   string
			authorID string
		)
		if err := rows.Scan(&q.ID, &lesson, &authorID, &q.Text, &q.Upvotes, &q.Answered, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson question: %w", err)
		}
		q.LessonID = attendance.LessonID(lesson)
		q.Author = identity.UserID(authorID)
		result = append(result, &q)
	}

	return result, rows.Err()
}
